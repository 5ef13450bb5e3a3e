package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kem-a/e-webapp/internal/appimage"
	"github.com/kem-a/e-webapp/internal/config"
	"github.com/kem-a/e-webapp/internal/desktop"
	"github.com/kem-a/e-webapp/internal/easylist"
	"github.com/kem-a/e-webapp/internal/fsutil"
	"github.com/kem-a/e-webapp/internal/install"
	"github.com/kem-a/e-webapp/internal/staging"
	"github.com/kem-a/e-webapp/internal/transaction"
	"github.com/kem-a/e-webapp/internal/webmeta"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type createFlags struct {
	name            string
	configPath      string
	electronVersion string
	installAppImage bool
	wayland         bool
	debug           bool
	useAppimagetool bool
}

func newCreateCommand(st *state) *cobra.Command {
	var f createFlags

	cmd := &cobra.Command{
		Use:   "create [url]",
		Short: "Package a web page and install it",
		Long: `Fetch the page metadata and icon, stage the Electron dependencies, build
the app with electron-builder and install it natively, or as an AppImage
with --install-appimage. The URL and name may come from a Lua app
definition given with --config; flags override it.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return &UsageError{Usage: cmd.CommandPath() + " <url> --name <App> [flags]"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.setup(); err != nil {
				return err
			}
			app, err := f.resolveApp(cmd, st, args)
			if err != nil {
				return err
			}
			return runCreate(cmd.Context(), st, app, f, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.name, "name", "n", "", "Application name")
	flags.StringVarP(&f.configPath, "config", "c", "", "Lua app definition (ewebapp.lua)")
	flags.StringVar(&f.electronVersion, "electron-version", "", "Electron version to package (default latest)")
	flags.BoolVar(&f.installAppImage, "install-appimage", false, "Build and install an AppImage instead of a native app")
	flags.BoolVar(&f.wayland, "wayland", false, "Launch the AppImage with native Wayland flags")
	flags.BoolVar(&f.debug, "debug", false, "Keep the app working directory after an AppImage install")
	flags.BoolVar(&f.useAppimagetool, "use-appimagetool", false, "Package the AppDir with appimagetool instead of the built-in builder")
	return cmd
}

// resolveApp merges the optional Lua definition with the command line.
func (f *createFlags) resolveApp(cmd *cobra.Command, st *state, args []string) (*config.App, error) {
	app := &config.App{}
	if f.configPath != "" {
		parsed, err := config.NewParser(st.detector).ParseFile(cmd.Context(), f.configPath)
		if err != nil {
			return nil, errors.New(config.FormatError(err, st.settings.LogDev))
		}
		app = parsed
	}

	if len(args) == 1 {
		app.URL = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("name") {
		app.Name = f.name
	}
	if flags.Changed("electron-version") {
		app.ElectronVersion = f.electronVersion
	}
	if flags.Changed("install-appimage") {
		app.AppImage = f.installAppImage
	}
	if flags.Changed("wayland") {
		app.Wayland = f.wayland
	}

	if app.Name == "" && app.URL == "" {
		return nil, &UsageError{Usage: cmd.CommandPath() + " <url> --name <App> [flags]"}
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// Steps recorded for create.
const (
	stepMetadata = "metadata"
	stepStage    = "stage"
	stepBuild    = "build"
	stepInstall  = "install"
)

func runCreate(ctx context.Context, st *state, app *config.App, f createFlags, out io.Writer) error {
	settings := st.settings
	appDir := filepath.Join(settings.BuildDir, app.LowerName())

	record := transaction.New(transaction.OperationCreate, stepMetadata, stepStage, stepBuild, stepInstall)
	logger := st.logger.With(zap.String("app", app.Name), zap.String("build_id", record.ID))

	lock, err := transaction.AcquireLock(ctx, appDir, record.ID)
	if err != nil {
		return fmt.Errorf("lock app dir: %w", err)
	}

	c := &creation{st: st, app: app, flags: f, appDir: appDir, out: out, logger: logger}
	err = c.run(ctx, record)

	record.Finish()
	if saveErr := record.Save(appDir); saveErr != nil {
		logger.Warn("failed to save build record", zap.Error(saveErr))
	}
	lock.Release()

	if err == nil && app.AppImage && !f.debug {
		if rmErr := os.RemoveAll(appDir); rmErr != nil {
			logger.Warn("failed to remove app working directory", zap.String("path", appDir), zap.Error(rmErr))
		}
	}
	return err
}

// creation carries one create run through its steps.
type creation struct {
	st     *state
	app    *config.App
	flags  createFlags
	appDir string
	out    io.Writer
	logger *zap.Logger

	icon     string
	mode     staging.Mode
	unpacked string
	stager   *staging.Stager
}

func (c *creation) run(ctx context.Context, record *transaction.Build) error {
	steps := []struct {
		name string
		fn   func(context.Context) (string, error)
	}{
		{stepMetadata, c.metadata},
		{stepStage, c.stage},
		{stepBuild, c.build},
		{stepInstall, c.install},
	}
	for _, s := range steps {
		record.Begin(s.name)
		detail, err := s.fn(ctx)
		if err != nil {
			record.Fail(s.name, err)
			return err
		}
		record.Complete(s.name, detail)
	}
	return nil
}

func (c *creation) metadata(ctx context.Context) (string, error) {
	if _, err := config.NewGenerator().WriteFile(c.appDir, c.app); err != nil {
		return "", err
	}

	fmt.Fprintf(c.out, "Fetching metadata for %s\n", c.app.URL)
	scraper := webmeta.New(c.st.http, c.logger)
	md, err := scraper.Fetch(ctx, c.app.URL)
	if err != nil {
		return "", err
	}
	if _, err := md.Save(c.appDir); err != nil {
		return "", err
	}
	if c.app.Description == "" {
		c.app.Description = md.Description
	}

	c.icon = filepath.Join(c.appDir, webmeta.IconFileName)
	defaultIcon := filepath.Join(c.st.settings.TemplateDir, staging.TemplateDefaultIcon)
	source, err := scraper.SaveIcon(ctx, md.IconURL, c.icon, defaultIcon)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("icon %s", source), nil
}

func (c *creation) stage(ctx context.Context) (string, error) {
	fmt.Fprintln(c.out, "Staging Electron dependencies")
	c.stager = staging.New(c.st.runner, c.st.settings.StagingDir, c.logger)
	mode, err := c.stager.Install(ctx, c.app.ElectronVersion)
	if err != nil {
		return "", err
	}
	c.mode = mode

	if err := c.stager.Prepare(ctx, c.st.settings.TemplateDir, c.appDir, c.app); err != nil {
		return "", err
	}
	if err := refreshEasylist(ctx, c.st, staging.EasylistPath(c.appDir), c.out); err != nil {
		return "", err
	}
	return fmt.Sprintf("npm on %s", mode), nil
}

func (c *creation) build(ctx context.Context) (string, error) {
	fmt.Fprintln(c.out, "Building with electron-builder")
	unpacked, err := c.stager.BuildUnpacked(ctx, c.mode, c.appDir)
	if err != nil {
		return "", err
	}
	c.unpacked = unpacked
	return unpacked, nil
}

func (c *creation) install(ctx context.Context) (string, error) {
	layout, err := install.DefaultLayout()
	if err != nil {
		return "", err
	}
	installer := install.New(layout, c.logger)
	entry := desktop.Base(c.app.Name, c.app.Categories, c.app.Keywords)

	var res *install.Result
	if c.app.AppImage {
		artifact, err := buildAppImage(ctx, c.st, c.app, entry, c.appDir, c.flags.useAppimagetool)
		if err != nil {
			return "", err
		}
		res, err = installer.AppImage(ctx, install.AppImageRequest{
			Entry:    entry,
			Artifact: artifact,
			Wayland:  c.app.Wayland,
			Icon:     c.icon,
		})
		if err != nil {
			return "", err
		}
	} else {
		res, err = installer.Native(ctx, install.NativeRequest{
			Entry:           entry,
			Unpacked:        c.unpacked,
			Exclude:         c.app.Exclude,
			UninstallScript: filepath.Join(c.st.settings.TemplateDir, staging.TemplateUninstall),
			Icon:            c.icon,
		})
		if err != nil {
			return "", err
		}
	}

	fmt.Fprintf(c.out, "%s installed successfully to %s\n", c.app.Name, res.AppPath)
	return res.AppPath, nil
}

// refreshEasylist keeps one copy of the filter list in the cache and
// copies it into the app. A failed download only warns.
func refreshEasylist(ctx context.Context, st *state, dest string, out io.Writer) error {
	cached := filepath.Join(st.settings.CacheDir, easylist.FileName)
	r := easylist.New(st.http, easylist.WithURL(st.settings.EasylistURL), easylist.WithLogger(st.logger))
	if _, err := r.Refresh(ctx, cached); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(out, "Warning: failed to update %s: %v\n", easylist.FileName, err)
	}

	if _, err := os.Stat(cached); err != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create resources dir: %w", err)
	}
	if err := fsutil.CopyFile(cached, dest, 0o644); err != nil {
		return fmt.Errorf("copy %s: %w", easylist.FileName, err)
	}
	return nil
}

// buildAppImage lays out the AppDir and packages it into
// <appDir>/e-webapp-<lower>.AppImage.
func buildAppImage(ctx context.Context, st *state, app *config.App, entry desktop.Entry, appDir string, useAppimagetool bool) (string, error) {
	appDirPath, err := appimage.StageAppDir(appimage.StageOptions{
		AppDir: appDir,
		Entry:  entry,
		AppRun: filepath.Join(st.settings.TemplateDir, staging.TemplateAppRun),
	})
	if err != nil {
		return "", err
	}

	artifact := filepath.Join(appDir, desktop.AppImageFileName(app.Name))
	if useAppimagetool {
		packager := appimage.NewPackager(st.runner, st.settings.Appimagetool, st.logger)
		if err := packager.Package(ctx, appDirPath, artifact); err != nil {
			return "", err
		}
		return artifact, nil
	}

	builder, err := st.builder(ctx)
	if err != nil {
		return "", err
	}
	if _, err := builder.Build(ctx, appimage.Request{
		InputDir:   appDirPath,
		OutputPath: artifact,
		WorkDir:    st.settings.BuildDir,
	}); err != nil {
		return "", err
	}
	return artifact, nil
}

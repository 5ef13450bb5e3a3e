package config

// Lua schema field names and globals
const (
	luaGlobalApp            = "ewebapp"
	luaFieldName            = "name"
	luaFieldURL             = "url"
	luaFieldDescription     = "description"
	luaFieldWayland         = "wayland"
	luaFieldElectronVersion = "electron_version"
	luaFieldInstallAppImage = "appimage"
	luaFieldCategories      = "categories"
	luaFieldKeywords        = "keywords"
	luaFieldExclude         = "exclude"
)

// AppFileName is the name of the Lua definition written next to a staged app.
const AppFileName = "ewebapp.lua"

// Limits applied during validation.
const (
	MaxNameLength  = 64
	MaxListEntries = 64
	MaxEntryLength = 128
)

//go:build darwin

package inject

// platformPasteModifier is the modifier held with "v" to paste on macOS.
const platformPasteModifier = "cmd"

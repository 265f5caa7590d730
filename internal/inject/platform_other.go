//go:build !darwin

package inject

// platformPasteModifier is the modifier held with "v" to paste on
// Linux/Windows.
const platformPasteModifier = "ctrl"

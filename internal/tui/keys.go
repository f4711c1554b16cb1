package tui

// Keybinding constants
const (
	KeyTab        = "tab"
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeyRestart    = "r"
	KeyRestartAll = "R"
	KeyStop       = "x"
	KeyCancel     = "c"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return styleHint.Render("j/k: select | tab: scroll log | r: restart | R: restart failed | x: stop | c: cancel all | q: quit")
}

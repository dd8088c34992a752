package canvas

// Dialog identifies a modal window of the application.
type Dialog string

const (
	DialogMain       Dialog = "MAIN"
	DialogSettings   Dialog = "SETTINGS_DIALOG"
	DialogHelp       Dialog = "HELP_DIALOG"
	DialogElements   Dialog = "ELEMENTS_DIALOG"
	DialogCodeViewer Dialog = "CODE_VIEWER_DIALOG"
	DialogCodeEditor Dialog = "CODE_EDITOR_DIALOG"
	DialogBlocks     Dialog = "BLOCKS_DIALOG"
	DialogCompiling  Dialog = "COMPILING"
)

// Valid reports whether d names a dialog.
func (d Dialog) Valid() bool {
	switch d {
	case DialogMain, DialogSettings, DialogHelp, DialogElements,
		DialogCodeViewer, DialogCodeEditor, DialogBlocks, DialogCompiling:
		return true
	}
	return false
}

// Dialogs tracks which dialogs are open. Each kind is open at most once;
// the last entry is the front-most window.
type Dialogs struct {
	open []Dialog
}

// NewDialogs returns a tracker with only the main window showing.
func NewDialogs() *Dialogs {
	return &Dialogs{}
}

// Open shows d. Opening a kind that is already open raises it to the front
// and returns raised=true.
func (s *Dialogs) Open(d Dialog) (raised bool) {
	if d == DialogMain || !d.Valid() {
		return false
	}
	for i, o := range s.open {
		if o == d {
			s.open = append(append(s.open[:i:i], s.open[i+1:]...), d)
			return true
		}
	}
	s.open = append(s.open, d)
	return false
}

// Close hides d and reports whether it was open.
func (s *Dialogs) Close(d Dialog) bool {
	for i, o := range s.open {
		if o == d {
			s.open = append(s.open[:i], s.open[i+1:]...)
			return true
		}
	}
	return false
}

// IsOpen reports whether d is showing. MAIN is always showing.
func (s *Dialogs) IsOpen(d Dialog) bool {
	if d == DialogMain {
		return true
	}
	for _, o := range s.open {
		if o == d {
			return true
		}
	}
	return false
}

// Front returns the front-most dialog, or MAIN when none is open.
func (s *Dialogs) Front() Dialog {
	if len(s.open) == 0 {
		return DialogMain
	}
	return s.open[len(s.open)-1]
}

// List returns the open dialogs from back to front.
func (s *Dialogs) List() []Dialog {
	out := make([]Dialog, len(s.open))
	copy(out, s.open)
	return out
}

// Compiling reports whether a compile is in progress; model commands are
// gated while it is.
func (s *Dialogs) Compiling() bool {
	return s.IsOpen(DialogCompiling)
}

package ui

// MenuHint is one key binding as shown in the header menu and help page.
type MenuHint struct {
	Key         string
	Description string
	// Global bindings work on every page and are drawn after the page's own.
	Global bool
}

// Component is a page of the console. Init runs once when the page is
// registered; Start and Stop bracket the time it is on top of the stack, so
// a page covered by another is stopped until it is uncovered.
type Component interface {
	Name() string
	Init()
	Start()
	Stop()
	Hints() []MenuHint
}

package bulk

import (
	"fmt"
	"io"

	"github.com/sakif/snippet-organizer/internal/codec"
)

// Operation is one of the bulk actions below. The set is closed: the marker
// method is unexported, so no other package can add a variant.
type Operation interface {
	fmt.Stringer
	operation()
}

// Delete removes each selected snippet.
type Delete struct{}

// Export writes every selected snippet, in selection order, into one
// document on Destination.
type Export struct {
	Format      codec.Format
	Destination io.Writer
}

// SetCategory moves each snippet into CategoryID; "" uncategorizes.
type SetCategory struct{ CategoryID string }

type AddTag struct{ TagID string }

type RemoveTag struct{ TagID string }

type SetTemplateFlag struct{ Value bool }

type SetMarkdownFlag struct{ Value bool }

// ToggleTemplateFlag flips the flag of each snippet individually.
type ToggleTemplateFlag struct{}

type ToggleMarkdownFlag struct{}

func (Delete) operation()             {}
func (Export) operation()             {}
func (SetCategory) operation()        {}
func (AddTag) operation()             {}
func (RemoveTag) operation()          {}
func (SetTemplateFlag) operation()    {}
func (SetMarkdownFlag) operation()    {}
func (ToggleTemplateFlag) operation() {}
func (ToggleMarkdownFlag) operation() {}

func (Delete) String() string             { return "delete" }
func (o Export) String() string           { return "export:" + string(o.Format) }
func (o SetCategory) String() string      { return "set_category:" + o.CategoryID }
func (o AddTag) String() string           { return "add_tag:" + o.TagID }
func (o RemoveTag) String() string        { return "remove_tag:" + o.TagID }
func (o SetTemplateFlag) String() string  { return fmt.Sprintf("set_template:%t", o.Value) }
func (o SetMarkdownFlag) String() string  { return fmt.Sprintf("set_markdown:%t", o.Value) }
func (ToggleTemplateFlag) String() string { return "toggle_template" }
func (ToggleMarkdownFlag) String() string { return "toggle_markdown" }

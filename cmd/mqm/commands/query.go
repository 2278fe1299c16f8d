package commands

import (
	"github.com/spf13/cobra"

	"github.com/ahrav/go-mqm/internal/application"
)

// queryOptions are the filter flags shared by commands that select ratings.
type queryOptions struct {
	columns application.ColumnFilters
	expr    string
}

func (o *queryOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.columns.System, "system", "", "regular expression the system must match")
	f.StringVar(&o.columns.Doc, "doc", "", "regular expression the document must match")
	f.StringVar(&o.columns.DocSegID, "doc-seg-id", "", "regular expression the document segment id must match")
	f.StringVar(&o.columns.GlobalSegID, "global-seg-id", "", "regular expression the global segment id must match")
	f.StringVar(&o.columns.Rater, "rater", "", "regular expression the rater must match")
	f.StringVar(&o.columns.Category, "category", "", "regular expression the category must match")
	f.StringVar(&o.columns.Severity, "severity", "", "regular expression the severity must match")
	f.StringVarP(&o.expr, "expr", "e", "", `filter expression, e.g. 'severity == "Major" && hasError(segment.sevcatsBySystem, "sysB", "Major/Accuracy")'`)
}

func (o *queryOptions) query() application.Query {
	return application.Query{Columns: o.columns, Expr: o.expr}
}

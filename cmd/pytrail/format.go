package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tDEFINITION\tFILE\tLINE")
	for _, s := range syms {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.DisplayName, s.Kind, s.DefinitionKind, s.File, lineOrDash(s.StartLine))
	}
	tw.Flush()
}

// formatSearchText formats CLISearchResult results with their scores.
func formatSearchText(w io.Writer, results []CLISearchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tID\tNAME\tKIND\tFILE\tLINE")
	for _, r := range results {
		fmt.Fprintf(tw, "%.2f\t%d\t%s\t%s\t%s\t%s\n",
			r.Score, r.Symbol.ID, r.Symbol.DisplayName, r.Symbol.Kind, r.Symbol.File, lineOrDash(r.Symbol.StartLine))
	}
	tw.Flush()
}

// formatReferencesText prints one row per reference location.
func formatReferencesText(w io.Writer, refs []CLIReference) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCONTEXT\tTARGET\tFILE\tLINE\tCOL")
	for _, r := range refs {
		ctx := fmt.Sprintf("%s (#%d)", r.ContextName, r.ContextID)
		target := fmt.Sprintf("%s (#%d)", r.TargetName, r.TargetID)
		for _, loc := range r.Locations {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
				r.Kind, ctx, target, loc.File, loc.StartLine, loc.StartCol)
		}
	}
	tw.Flush()
}

// formatEdgesText formats CLIEdge results as aligned columns.
func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tKIND\tFILE\tLINE\tCOL")
	for _, e := range edges {
		from := fmt.Sprintf("%s (#%d)", e.FromName, e.FromID)
		to := fmt.Sprintf("%s (#%d)", e.ToName, e.ToID)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			from, to, e.Kind, e.File, e.Line, e.Col)
	}
	tw.Flush()
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tLANGUAGE\tLINES")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", f.ID, f.Path, f.Language, f.LineCount)
	}
	tw.Flush()
}

// formatErrorsText formats diagnostics compiler-style.
func formatErrorsText(w io.Writer, errs []CLIError) {
	for _, e := range errs {
		severity := "error"
		if e.Fatal {
			severity = "fatal"
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", e.File, e.StartLine, e.StartCol, severity, e.Message)
	}
}

func lineOrDash(line int) string {
	if line == 0 {
		return "-"
	}
	return fmt.Sprint(line)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case CLISymbol:
		formatSymbolsText(w, []CLISymbol{v})
	case []CLISearchResult:
		formatSearchText(w, v)
	case []CLIReference:
		formatReferencesText(w, v)
	case []CLIEdge:
		formatEdgesText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case []CLIError:
		formatErrorsText(w, v)
	case nil:
		// No output for nil results (e.g., symbol-at with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Truncation footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLILocation:
		return len(r)
	case []CLISymbol:
		return len(r)
	case []CLISearchResult:
		return len(r)
	case []CLIReference:
		return len(r)
	case []CLIEdge:
		return len(r)
	case []CLIFile:
		return len(r)
	case []CLIError:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/georgepadayatti/adesval/sign/ades"
)

// Summary counts verdicts across a report.
type Summary struct {
	TotalSignatures         int
	ValidSignatures         int
	InvalidSignatures       int
	IndeterminateSignatures int
	FaultedSignatures       int

	TotalTimestamps int
	ValidTimestamps int

	SignatureLevels map[ades.SignatureLevel]int
	SubIndications  map[ades.SubIndication]int
}

// Summarize counts the verdicts of r.
func Summarize(r *Reports) *Summary {
	s := &Summary{
		SignatureLevels: make(map[ades.SignatureLevel]int),
		SubIndications:  make(map[ades.SubIndication]int),
	}
	s.FaultedSignatures = len(r.Faults)
	for _, sig := range r.Simple.Signatures {
		s.TotalSignatures++
		switch sig.Indication {
		case ades.IndicationValid:
			s.ValidSignatures++
		case ades.IndicationInvalid:
			s.InvalidSignatures++
		default:
			s.IndeterminateSignatures++
		}
		s.SignatureLevels[sig.SignatureLevel]++
		if sig.SubIndication != ades.SubIndicationNone {
			s.SubIndications[sig.SubIndication]++
		}
	}
	for _, sig := range r.Detailed.Signatures {
		s.TotalTimestamps += len(sig.Timestamps)
		for _, ts := range sig.Timestamps {
			if ts.Conclusion.IsValid() {
				s.ValidTimestamps++
			}
		}
	}
	return s
}

// Format formats the summary as text.
func (s *Summary) Format() string {
	var sb strings.Builder

	sb.WriteString("=== VALIDATION SUMMARY ===\n\n")
	sb.WriteString("Signatures:\n")
	sb.WriteString(fmt.Sprintf("  Total: %d\n", s.TotalSignatures))
	sb.WriteString(fmt.Sprintf("  Valid: %d\n", s.ValidSignatures))
	sb.WriteString(fmt.Sprintf("  Invalid: %d\n", s.InvalidSignatures))
	sb.WriteString(fmt.Sprintf("  Indeterminate: %d\n", s.IndeterminateSignatures))
	if s.FaultedSignatures > 0 {
		sb.WriteString(fmt.Sprintf("  Faulted: %d\n", s.FaultedSignatures))
	}
	sb.WriteString("\n")

	if len(s.SignatureLevels) > 0 {
		levels := make([]ades.SignatureLevel, 0, len(s.SignatureLevels))
		for l := range s.SignatureLevels {
			levels = append(levels, l)
		}
		sort.Slice(levels, func(i, j int) bool { return levels[i].Rank() < levels[j].Rank() })
		sb.WriteString("Signature Levels:\n")
		for _, l := range levels {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", l, s.SignatureLevels[l]))
		}
		sb.WriteString("\n")
	}

	if s.TotalTimestamps > 0 {
		sb.WriteString("Timestamps:\n")
		sb.WriteString(fmt.Sprintf("  Total: %d\n", s.TotalTimestamps))
		sb.WriteString(fmt.Sprintf("  Valid: %d\n\n", s.ValidTimestamps))
	}

	if len(s.SubIndications) > 0 {
		subs := make([]string, 0, len(s.SubIndications))
		for sub := range s.SubIndications {
			subs = append(subs, string(sub))
		}
		sort.Strings(subs)
		sb.WriteString("Sub-indications:\n")
		for _, sub := range subs {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", sub, s.SubIndications[ades.SubIndication(sub)]))
		}
	}

	return sb.String()
}

// Formatter renders reports for people.
type Formatter struct {
	IncludeBlocks     bool
	IncludeTimestamps bool
	DateFormat        string
}

// NewFormatter creates a formatter with defaults.
func NewFormatter() *Formatter {
	return &Formatter{
		IncludeBlocks:     false,
		IncludeTimestamps: true,
		DateFormat:        time.RFC3339,
	}
}

// FormatAsText formats the reports as plain text.
func (f *Formatter) FormatAsText(r *Reports) string {
	var sb strings.Builder

	sb.WriteString("=== VALIDATION REPORT ===\n\n")
	sb.WriteString(fmt.Sprintf("Report ID: %s\n", r.ID))
	if r.DocumentName != "" {
		sb.WriteString(fmt.Sprintf("Document: %s\n", r.DocumentName))
	}
	sb.WriteString(fmt.Sprintf("Document Digest: %s\n", r.DocumentDigest))
	sb.WriteString(fmt.Sprintf("Validation Time: %s\n", r.ValidationTime.Format(f.DateFormat)))
	if r.Policy != "" {
		sb.WriteString(fmt.Sprintf("Policy: %s\n", r.Policy))
	}
	sb.WriteString("\n")

	for i, sig := range r.Simple.Signatures {
		sb.WriteString(fmt.Sprintf("--- Signature %d: %s ---\n", i+1, sig.ID))
		sb.WriteString(fmt.Sprintf("Indication: %s\n", sig.Indication))
		if sig.SubIndication != ades.SubIndicationNone {
			sb.WriteString(fmt.Sprintf("Sub-indication: %s\n", sig.SubIndication))
		}
		sb.WriteString(fmt.Sprintf("Level: %s (required %s)\n", sig.SignatureLevel, sig.RequiredLevel))
		if sig.BestSignatureTime != nil {
			sb.WriteString(fmt.Sprintf("Proven Signing Time: %s\n", sig.BestSignatureTime.Format(f.DateFormat)))
		}

		if detail, err := r.Detailed.Signature(sig.ID); err == nil {
			writeLevels(&sb, detail)
			if f.IncludeTimestamps && len(detail.Timestamps) > 0 {
				sb.WriteString("Timestamps:\n")
				for _, ts := range detail.Timestamps {
					sb.WriteString(fmt.Sprintf("  %s [%s] %s: %s\n",
						ts.ID, ts.Type, ts.ProductionTime.Format(f.DateFormat), ts.Conclusion))
				}
			}
		}

		if len(sig.Errors) > 0 {
			sb.WriteString("Errors:\n")
			for _, e := range sig.Errors {
				sb.WriteString(fmt.Sprintf("  - %s: %s\n", e.Key, e.Value))
			}
		}
		if len(sig.Warnings) > 0 {
			sb.WriteString("Warnings:\n")
			for _, w := range sig.Warnings {
				sb.WriteString(fmt.Sprintf("  - %s: %s\n", w.Key, w.Value))
			}
		}
		sb.WriteString("\n")
	}

	if f.IncludeBlocks {
		sb.WriteString("--- Basic Building Blocks ---\n")
		for _, b := range r.Detailed.BasicBuildingBlocks {
			sb.WriteString(fmt.Sprintf("%s [%s] %s\n", b.ID, b.Kind, b.Conclusion))
			for _, c := range b.Checks {
				sb.WriteString(fmt.Sprintf("  %-45s %s\n", c.Name, c.Status))
			}
		}
		sb.WriteString("\n")
	}

	for _, fault := range r.Faults {
		sb.WriteString(fmt.Sprintf("--- Signature %s: NOT VALIDATED ---\n", fault.SignatureID))
		sb.WriteString(fmt.Sprintf("Error: %s\n\n", fault.Error))
	}

	sb.WriteString(Summarize(r).Format())
	return sb.String()
}

func writeLevels(sb *strings.Builder, s *SignatureOutcome) {
	sb.WriteString("Levels:\n")
	for _, lc := range s.levels() {
		sb.WriteString(fmt.Sprintf("  %-12s %s\n", lc.name+":", lc.c))
	}
}

// FormatAsMarkdown formats the reports as Markdown.
func (f *Formatter) FormatAsMarkdown(r *Reports) string {
	var sb strings.Builder

	sb.WriteString("# Validation Report\n\n")
	sb.WriteString(fmt.Sprintf("**Report ID:** %s\n\n", r.ID))
	if r.DocumentName != "" {
		sb.WriteString(fmt.Sprintf("**Document:** %s\n\n", r.DocumentName))
	}
	sb.WriteString(fmt.Sprintf("**Validation Time:** %s\n\n", r.ValidationTime.Format(f.DateFormat)))

	if len(r.Simple.Signatures) > 0 {
		sb.WriteString("## Signatures\n\n")
		sb.WriteString("| # | ID | Indication | Sub-indication | Level |\n")
		sb.WriteString("|---|----|------------|----------------|-------|\n")
		for i, sig := range r.Simple.Signatures {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				i+1, sig.ID, sig.Indication, sig.SubIndication, sig.SignatureLevel))
		}
		sb.WriteString("\n")
	}

	if len(r.Faults) > 0 {
		sb.WriteString("## Faults\n\n")
		for _, fault := range r.Faults {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", fault.SignatureID, fault.Error))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteTo writes the reports to w in the given format: text, markdown or
// json.
func (f *Formatter) WriteTo(w io.Writer, r *Reports, format string) error {
	var output string
	switch strings.ToLower(format) {
	case "markdown", "md":
		output = f.FormatAsMarkdown(r)
	case "json":
		data, err := r.MarshalIndent()
		if err != nil {
			return err
		}
		output = string(data) + "\n"
	case "text", "":
		output = f.FormatAsText(r)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}

	_, err := io.WriteString(w, output)
	return err
}

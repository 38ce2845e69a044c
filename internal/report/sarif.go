package report

import (
	"bytes"
	"fmt"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/codequarry/quarry/internal/types"
)

const toolInfoURI = "https://github.com/codequarry/quarry"

// RenderSARIF produces a SARIF 2.1.0 document from the run's new
// findings, one result per finding, suitable for code-scanning upload.
func RenderSARIF(report *types.Report) ([]byte, error) {
	doc, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("creating SARIF document: %w", err)
	}

	run := sarif.NewRunWithInformationURI("quarry", toolInfoURI)
	for _, sf := range report.NewFindings {
		f := sf.Finding
		level := toSARIFLevel(f.Severity)

		rule := run.AddRule(f.Rule).
			WithDescription(f.Rule).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})

		physical := sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.SourcePath))
		if f.Line != nil {
			physical = physical.WithRegion(sarif.NewRegion().WithStartLine(*f.Line))
		}
		location := sarif.NewLocation().WithPhysicalLocation(physical)

		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(f.Message)).
			WithLevel(level).
			WithLocations([]*sarif.Location{location})
		if sf.Proposal != nil {
			result.WithPartialFingerPrints(map[string]interface{}{
				"quarry/v1": string(sf.Proposal.Fingerprint),
			})
		}
		run.AddResult(result)
	}
	doc.AddRun(run)

	var buf bytes.Buffer
	if err := doc.PrettyWrite(&buf); err != nil {
		return nil, fmt.Errorf("encoding SARIF document: %w", err)
	}
	return buf.Bytes(), nil
}

func toSARIFLevel(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical, types.SeverityError:
		return "error"
	case types.SeverityWarning:
		return "warning"
	case types.SeverityInfo:
		return "note"
	default:
		return "none"
	}
}

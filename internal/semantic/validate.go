package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"usdmcore/pkg/domain"
)

// SoAReferenceValidator checks the schedule-of-activities cross-references
// inside each study design: scheduled instances must point at existing
// encounters, activities, and epochs. Duplicate ids inside a collection are
// reported at warn severity; the resolver's first-match policy would
// silently target the wrong element otherwise.
func SoAReferenceValidator() domain.Validator {
	return soaReferenceValidator{}
}

type soaReferenceValidator struct{}

func (soaReferenceValidator) Name() string { return "soa_references" }

func (soaReferenceValidator) Validate(_ context.Context, document any) (domain.Result, error) {
	res := domain.Result{}
	for di, design := range studyDesigns(document) {
		base := fmt.Sprintf("/study/versions/0/studyDesigns/%d", di)
		encounters := collectIDs(design, "encounters", base, &res)
		activities := collectIDs(design, "activities", base, &res)
		epochs := collectIDs(design, "epochs", base, &res)

		timelines, _ := asSlice(design["scheduleTimelines"])
		for ti, rawTimeline := range timelines {
			timeline, ok := asMap(rawTimeline)
			if !ok {
				continue
			}
			instances, _ := asSlice(timeline["instances"])
			for ii, rawInstance := range instances {
				instance, ok := asMap(rawInstance)
				if !ok {
					continue
				}
				at := fmt.Sprintf("%s/scheduleTimelines/%d/instances/%d", base, ti, ii)
				if encID, ok := instance["encounterId"].(string); ok && encID != "" {
					if _, found := encounters[encID]; !found {
						res.Findings = append(res.Findings, soaFinding(domain.SeverityBlock, at, fmt.Sprintf("instance references missing encounter %q", encID)))
					}
				}
				if epochID, ok := instance["epochId"].(string); ok && epochID != "" {
					if _, found := epochs[epochID]; !found {
						res.Findings = append(res.Findings, soaFinding(domain.SeverityBlock, at, fmt.Sprintf("instance references missing epoch %q", epochID)))
					}
				}
				activityIDs, _ := asSlice(instance["activityIds"])
				for _, rawID := range activityIDs {
					actID, ok := rawID.(string)
					if !ok || actID == "" {
						continue
					}
					if _, found := activities[actID]; !found {
						res.Findings = append(res.Findings, soaFinding(domain.SeverityBlock, at, fmt.Sprintf("instance references missing activity %q", actID)))
					}
				}
			}
		}
	}
	return res, nil
}

func soaFinding(sev domain.Severity, path, message string) domain.Finding {
	return domain.Finding{Validator: "soa_references", Severity: sev, Path: path, Message: message}
}

// studyDesigns walks study.versions[].studyDesigns[] defensively; a
// document missing the shape simply contributes nothing.
func studyDesigns(document any) []map[string]any {
	root, ok := asMap(document)
	if !ok {
		return nil
	}
	study, ok := asMap(root["study"])
	if !ok {
		return nil
	}
	versions, _ := asSlice(study["versions"])
	var out []map[string]any
	for _, rawVersion := range versions {
		version, ok := asMap(rawVersion)
		if !ok {
			continue
		}
		designs, _ := asSlice(version["studyDesigns"])
		for _, rawDesign := range designs {
			if design, ok := asMap(rawDesign); ok {
				out = append(out, design)
			}
		}
	}
	return out
}

// collectIDs indexes the ids of one entity collection, reporting duplicates.
func collectIDs(design map[string]any, collection, base string, res *domain.Result) map[string]struct{} {
	elems, _ := asSlice(design[collection])
	ids := make(map[string]struct{}, len(elems))
	for i, elem := range elems {
		id, ok := entityID(elem)
		if !ok || id == "" {
			continue
		}
		if _, dup := ids[id]; dup {
			res.Findings = append(res.Findings, soaFinding(domain.SeverityWarn,
				fmt.Sprintf("%s/%s/%d", base, collection, i),
				fmt.Sprintf("duplicate id %q in %s; @id addressing takes the first match", id, collection)))
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// execVerdict is the JSON contract external validators print on stdout.
type execVerdict struct {
	Valid  bool `json:"valid"`
	Issues []struct {
		Path     string `json:"path,omitempty"`
		Message  string `json:"message"`
		Severity string `json:"severity,omitempty"`
	} `json:"issues,omitempty"`
}

// ExecValidator invokes an external document validator (schema or domain
// model checker) as a black-box process: candidate document on stdin, JSON
// verdict on stdout. The invocation is bounded by Timeout; a timeout or a
// non-zero exit is a failed validation, never a pass and never left
// pending.
type ExecValidator struct {
	ValidatorName string
	Argv          []string
	Timeout       time.Duration
}

// Name returns the validator identifier recorded with findings.
func (v *ExecValidator) Name() string { return v.ValidatorName }

// Validate runs the external process against the candidate document.
func (v *ExecValidator) Validate(ctx context.Context, document any) (domain.Result, error) {
	if len(v.Argv) == 0 {
		return domain.Result{}, fmt.Errorf("validator %s: empty command", v.ValidatorName)
	}
	payload, err := EncodeDocument(document)
	if err != nil {
		return domain.Result{}, err
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, v.Argv[0], v.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		return blockingResult(v.ValidatorName, fmt.Sprintf("validator timed out after %s", timeout)), nil
	}
	if runErr != nil {
		return blockingResult(v.ValidatorName, fmt.Sprintf("validator failed: %v: %s", runErr, stderr.String())), nil
	}
	var verdict execVerdict
	if err := json.Unmarshal(stdout.Bytes(), &verdict); err != nil {
		return blockingResult(v.ValidatorName, fmt.Sprintf("unreadable validator output: %v", err)), nil
	}
	res := domain.Result{}
	for _, issue := range verdict.Issues {
		sev := domain.Severity(issue.Severity)
		if sev != domain.SeverityWarn && sev != domain.SeverityLog {
			sev = domain.SeverityBlock
		}
		res.Findings = append(res.Findings, domain.Finding{Validator: v.ValidatorName, Severity: sev, Path: issue.Path, Message: issue.Message})
	}
	if !verdict.Valid && !res.HasBlocking() {
		res.Findings = append(res.Findings, domain.Finding{Validator: v.ValidatorName, Severity: domain.SeverityBlock, Message: "validator reported invalid document"})
	}
	return res, nil
}

func blockingResult(name, message string) domain.Result {
	return domain.Result{Findings: []domain.Finding{{Validator: name, Severity: domain.SeverityBlock, Message: message}}}
}

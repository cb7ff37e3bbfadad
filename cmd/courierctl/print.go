package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/auth"
	"github.com/chetanft/courier-integration-sub002/internal/courier"
	"github.com/chetanft/courier-integration-sub002/internal/outcome"
	"github.com/chetanft/courier-integration-sub002/internal/redact"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/store"
)

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// printDescriptor shows a normalized request with every secret masked.
func printDescriptor(w io.Writer, d *reqspec.Descriptor) error {
	data, err := json.MarshalIndent(redactedDescriptor(d), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func redactedDescriptor(d *reqspec.Descriptor) *reqspec.Descriptor {
	out := d.Clone()
	out.URL = redact.URL(out.URL)
	out.Headers = redact.Headers(out.Headers)
	out.Auth = redact.Auth(out.Auth)
	for i, pair := range out.QueryParams {
		if redact.SensitiveKey(pair.Key) && pair.Value != "" {
			out.QueryParams[i].Value = redact.Marker
		}
	}
	if out.Body.Text != "" {
		out.Body.Text = string(redact.JSON(json.RawMessage(out.Body.Text)))
	}
	return out
}

func printOutcome(w io.Writer, out outcome.Outcome, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	return printOutcomeSummary(w, out)
}

func printOutcomeSummary(w io.Writer, out outcome.Outcome) error {
	head := string(out.Kind)
	if out.Status > 0 {
		head += fmt.Sprintf("  %d %s", out.Status, out.StatusText)
	}
	if out.Via != "" {
		head += "  via " + out.Via
	}
	if out.DurationMS > 0 {
		head += fmt.Sprintf("  %dms", out.DurationMS)
	}
	fmt.Fprintln(w, head)

	if out.Code != "" && !out.OK() {
		fmt.Fprintf(w, "code: %s\n", out.Code)
	}
	if out.Message != "" {
		fmt.Fprintf(w, "message: %s\n", out.Message)
	}
	if out.Warning != "" {
		fmt.Fprintf(w, "warning: %s\n", out.Warning)
	}
	if out.Suggestion != "" {
		fmt.Fprintf(w, "suggestion: %s\n", out.Suggestion)
	}
	if out.Page != nil {
		if out.Page.Pages > 1 {
			fmt.Fprintf(w, "pages merged: %d\n", out.Page.Pages)
		}
		if out.Page.NextPage != "" {
			fmt.Fprintf(w, "next page: %s\n", out.Page.NextPage)
		}
	}
	if out.Truncated != nil {
		fmt.Fprintf(w, "body truncated at ~%s\n", formatBytes(out.Truncated.ApproxSize))
		if out.Truncated.Sample != nil {
			if data, err := json.MarshalIndent(out.Truncated.Sample, "", "  "); err == nil {
				fmt.Fprintln(w, string(data))
			}
		}
	}
	if len(out.Data) > 0 {
		fmt.Fprintln(w, prettyJSON(out.Data))
	}
	return nil
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

type batchResultView struct {
	Courier string          `json:"courier"`
	Outcome outcome.Outcome `json:"outcome"`
}

func printBatchResults(w io.Writer, results []courier.BatchResult, asJSON bool) error {
	if asJSON {
		views := make([]batchResultView, len(results))
		for i, r := range results {
			views[i] = batchResultView{Courier: r.CourierID, Outcome: r.Outcome}
		}
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "COURIER\tKIND\tSTATUS\tVIA\tDURATION")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\n",
			r.CourierID,
			r.Outcome.Kind,
			statusColumn(r.Outcome.Status),
			textOrDash(r.Outcome.Via),
			r.Outcome.DurationMS,
		)
	}
	return tw.Flush()
}

type runRecordView struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Courier    string    `json:"courier,omitempty"`
	Method     string    `json:"method,omitempty"`
	URL        string    `json:"url,omitempty"`
	Intent     string    `json:"intent,omitempty"`
	Kind       string    `json:"kind"`
	Status     int       `json:"status,omitempty"`
	Via        string    `json:"via,omitempty"`
	DurationMS int64     `json:"durationMs,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func printRuns(w io.Writer, runs []store.RunRecord, asJSON bool) error {
	if asJSON {
		views := make([]runRecordView, len(runs))
		for i, rec := range runs {
			views[i] = runRecordView{
				ID:         rec.ID,
				At:         rec.At,
				Courier:    rec.CourierID,
				Method:     rec.Method,
				URL:        rec.URL,
				Intent:     rec.Intent,
				Kind:       rec.Kind,
				Status:     rec.Status,
				Via:        rec.Via,
				DurationMS: rec.DurationMS,
				Message:    rec.Message,
			}
		}
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs journaled")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tCOURIER\tMETHOD\tKIND\tSTATUS\tVIA\tDURATION\tURL")
	for _, rec := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			rec.At.Local().Format("2006-01-02 15:04:05"),
			textOrDash(rec.CourierID),
			rec.Method,
			rec.Kind,
			statusColumn(rec.Status),
			textOrDash(rec.Via),
			rec.DurationMS,
			rec.URL,
		)
	}
	return tw.Flush()
}

// printCredentials never prints secret values, only which fields exist.
// The username is the one field shown in the clear.
func printCredentials(w io.Writer, courierID string, creds auth.Credentials, asJSON bool) error {
	fields := make(map[string]string)
	if creds.Username != "" {
		fields["username"] = creds.Username
	}
	if creds.Password != "" {
		fields["password"] = redact.Marker
	}
	if creds.Token != "" {
		fields["token"] = redact.Marker
	}
	if creds.APIKey != "" {
		fields["apiKey"] = redact.Marker
	}

	if asJSON {
		payload := struct {
			Courier     string            `json:"courier"`
			Credentials map[string]string `json:"credentials"`
		}{Courier: courierID, Credentials: fields}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "courier: %s\n", courierID)
	for _, key := range []string{"username", "password", "token", "apiKey"} {
		if value, ok := fields[key]; ok {
			fmt.Fprintf(w, "%s: %s\n", key, value)
		}
	}
	return nil
}

func printCourierList(w io.Writer, ids []string, asJSON bool) error {
	if asJSON {
		if ids == nil {
			ids = []string{}
		}
		data, err := json.MarshalIndent(ids, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(ids) == 0 {
		fmt.Fprintln(w, "no stored credentials")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func statusColumn(status int) string {
	if status <= 0 {
		return "-"
	}
	return strconv.Itoa(status)
}

func textOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package report

import (
	"bytes"
	"fmt"
	"html/template"

	"ombra/models"
)

// reportTemplate renders the static, self-contained HTML artifact embedding
// the chain of custody. The artifact is opaque output for display and
// download; nothing re-parses it.
var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Chain of Custody - {{.MissionCode}}</title>
<style>
body { font-family: Georgia, serif; max-width: 760px; margin: 2rem auto; color: #1a1a1a; }
h1 { border-bottom: 2px solid #1a1a1a; padding-bottom: .5rem; }
table { width: 100%; border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #999; padding: .4rem .6rem; text-align: left; font-size: .9rem; }
.meta dt { font-weight: bold; }
.notice { font-size: .8rem; color: #555; border-top: 1px solid #999; margin-top: 2rem; padding-top: 1rem; }
.unverified { color: #a00; font-weight: bold; }
</style>
</head>
<body>
<h1>Document Chain of Custody</h1>
<dl class="meta">
<dt>Mission</dt><dd>{{.MissionCode}}</dd>
<dt>Security level</dt><dd>{{.Level}}</dd>
<dt>Pickup</dt><dd>{{.PickupAddress}}</dd>
<dt>Dropoff</dt><dd>{{.DropoffAddress}}</dd>
<dt>Generated</dt><dd>{{.GeneratedAt.Format "2006-01-02 15:04:05 UTC"}}</dd>
{{if .ConfirmedAt}}<dt>Confirmed</dt><dd>{{.ConfirmedAt.Format "2006-01-02 15:04:05 UTC"}} ({{.ConfirmationUsed}})</dd>{{end}}
</dl>
<h2>Custody Events</h2>
<table>
<tr><th>#</th><th>Event</th><th>Timestamp</th><th>Performed by</th><th>Checksum</th><th>Verified</th></tr>
{{range $i, $e := .Chain}}
<tr>
<td>{{add $i 1}}</td>
<td>{{$e.Event}}</td>
<td>{{$e.Timestamp.Format "2006-01-02 15:04:05.000 UTC"}}</td>
<td>{{$e.PerformedBy}}</td>
<td><code>{{$e.Checksum}}</code></td>
<td>{{if $e.Verified}}yes{{else}}<span class="unverified">NO</span>{{end}}</td>
</tr>
{{end}}
</table>
{{if .ScanAtPickup}}<p>Pickup scan reference: <code>{{.ScanAtPickup}}</code></p>{{end}}
{{if .ScanAtDelivery}}<p>Delivery scan reference: <code>{{.ScanAtDelivery}}</code></p>{{end}}
<p>Report checksum: <code>{{.ReportChecksum}}</code></p>
<p class="notice">This report reconstructs the handling sequence of a sealed
document mission from the append-only audit log. Checksums are integrity
indicators against accidental corruption and are not cryptographic
signatures. Retain this document with the physical delivery receipt.</p>
</body>
</html>
`))

// RenderHTML serializes a report into the downloadable HTML artifact.
func RenderHTML(r *models.DocumentReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

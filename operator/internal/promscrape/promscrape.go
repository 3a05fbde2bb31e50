package promscrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names exported by portwatch-server.
const (
	metricAcquisitions    = "portwatch_reservation_acquisitions_total"
	metricReleases        = "portwatch_reservation_releases_total"
	metricEvictions       = "portwatch_reservation_evictions_total"
	metricActive          = "portwatch_reservations_active"
	metricClassifications = "portwatch_status_classifications_total"
	metricDegraded        = "portwatch_degraded_operations_total"
	metricHTTPRequests    = "portwatch_http_requests_total"
	metricAlertsFired     = "portwatch_alerts_fired_total"
	metricWSClients       = "portwatch_ws_clients"
)

// Summary is the operator's view of the server's counters.
type Summary struct {
	ActiveReservations float64
	Acquisitions       map[string]float64 // by result
	Releases           float64
	Evictions          float64
	Classifications    map[string]float64 // by band
	Degraded           map[string]float64 // by operation
	AlertsFired        map[string]float64 // by rule
	HTTPRequests       float64
	HTTPServerErrors   float64
	WSClients          float64
}

// Fetch performs an HTTP GET to url and returns parsed metric families.
func Fetch(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("promscrape: build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("promscrape: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("promscrape: unexpected status %d", resp.StatusCode)
	}
	return Parse(resp.Body)
}

// Parse decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func Parse(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("promscrape: parse text: %w", err)
	}
	return mfs, nil
}

// Summarize folds the portwatch families in mfs into a Summary. Missing
// families read as zero.
func Summarize(mfs map[string]*dto.MetricFamily) Summary {
	s := Summary{
		ActiveReservations: Sum(mfs[metricActive]),
		Acquisitions:       ByLabel(mfs[metricAcquisitions], "result"),
		Releases:           Sum(mfs[metricReleases]),
		Evictions:          Sum(mfs[metricEvictions]),
		Classifications:    ByLabel(mfs[metricClassifications], "band"),
		Degraded:           ByLabel(mfs[metricDegraded], "operation"),
		AlertsFired:        ByLabel(mfs[metricAlertsFired], "rule"),
		HTTPRequests:       Sum(mfs[metricHTTPRequests]),
		WSClients:          Sum(mfs[metricWSClients]),
	}
	for code, v := range ByLabel(mfs[metricHTTPRequests], "code") {
		if strings.HasPrefix(code, "5") {
			s.HTTPServerErrors += v
		}
	}
	return s
}

// Sum adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func Sum(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// ByLabel sums the family's samples grouped by the value of label. Samples
// without the label are grouped under "".
func ByLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		key := ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				key = lp.GetValue()
				break
			}
		}
		out[key] += value(m)
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

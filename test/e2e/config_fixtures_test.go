package e2e

import "fmt"

// e2eConfigPrefix builds common service/log/http config used in e2e tests.
// Params: service name, HTTP port, and whether HTTP ingest is enabled.
// Returns: TOML prefix string with stable defaults.
func e2eConfigPrefix(name string, port int, httpIngest bool) string {
	return fmt.Sprintf(`
[service]
name = "%s"
reload_enabled = false

[log.console]
enabled = true
level = "error"
format = "line"

[ingest.http]
enabled = %t
listen = "127.0.0.1:%d"
health_path = "/healthz"
ready_path = "/readyz"
ingest_path = "/ingest"
api_prefix = "/api"
max_body_bytes = 1048576
`, name, httpIngest, port)
}

// e2eWebhookNotify builds HTTP webhook notify section.
// Params: webhook URL and severity floor.
// Returns: TOML fragment.
func e2eWebhookNotify(webhookURL, minSeverity string) string {
	return fmt.Sprintf(`
[notify]
min_severity = "%s"

[notify.http]
enabled = true
url = "%s"
method = "POST"
timeout_sec = 2
message = "[{{ upper .Alert.Severity }}] {{ .Alert.Title }}"

[notify.http.retry]
enabled = false
`, minSeverity, webhookURL)
}

// silentReportJSON returns report that triggers churn, engagement, and champion alerts.
// Params: account ID and days since last activity.
// Returns: JSON document for ingest endpoints.
func silentReportJSON(accountID string, idleDays int) string {
	return fmt.Sprintf(`{"accountId":"%s","accountName":"Account %s","accountAgeDays":300,`+
		`"usage":{"totalItems":120,"totalKanbanCards":30,"totalOrders":6,"totalUsers":8,`+
		`"activeUsersLast7Days":0,"activeUsersLast30Days":0,"daysSinceLastActivity":%d},`+
		`"commercial":{"paymentStatus":"current","arr":30000}}`, accountID, accountID, idleDays)
}

// Package cmd defines the CLI commands for the harvester executable.
//
// Architecture overview:
//   - Input: URLs come from arguments, a file or stdin (plain lines or JSON lines
//     with metadata), the HTTP API, or link discovery from seed pages (colly).
//   - Fetch escalation: every URL gets one plain HTTP attempt with browser-like
//     headers and per-domain spacing. Anti-bot responses, thin pages and known
//     client-rendered hosts escalate to a pooled headless Chrome session
//     (chromedp). Skipped platforms never leave the process.
//   - Extraction: goquery prunes navigation and boilerplate, html-to-markdown
//     converts the rest, and a line filter strips engagement and social noise.
//     Items that yield nothing still produce a placeholder document.
//   - Persistence & fanout: documents are written as Markdown to the configured
//     BlobStore (local/GCS/memory), optionally indexed in Postgres, and announced
//     on Pub/Sub when a project is configured.
//   - Configuration & plumbing: Viper populates config from file and HARVESTER_*
//     env vars; zap provides structured logging; Prometheus metrics are served at
//     /metrics by the serve command.
//
// Operational notes:
//   - The browser is started lazily on the first escalation and closed exactly
//     once on exit or SIGINT/SIGTERM through the shutdown registry.
//   - Cancelling a run stops new fetches, but every accepted URL still yields a
//     document.
package cmd

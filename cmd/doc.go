// Package cmd implements the question-sync command line.
//
// Architecture overview:
//   - scrape: walks question ids start..end in order. Each page is fetched (headless Chromium by default,
//     plain HTTP via Colly with fetcher.mode=static), parsed with goquery, upserted into Postgres keyed by
//     question id and mirrored into the Notion database. Missing pages are skipped silently; failures on one
//     id are logged and the run moves on. A fixed pacing delay separates consecutive ids.
//   - sync: reads every stored record and mirrors each one into Notion, at most notion.max_concurrent calls
//     in flight and notion.requests_per_second calls started per second.
//   - schema: creates the database and table when missing and prints the stored record count.
//
// Operational notes:
//   - Publishing is optional: without NOTION_TOKEN and NOTION_DATABASE_ID records are only stored.
//   - Mirroring is not idempotent. Every publish creates a new page, so re-running sync duplicates pages.
//   - SIGINT/SIGTERM cancel the run between ids; in-flight publishes observe the same context.
//   - With metrics.addr set, /healthz, /readyz, /metrics and /v1/questions are served for the lifetime of the command.
//
// Quick checklist:
//   - Configure env vars: CRAWLING_SITE, DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME, NOTION_TOKEN,
//     NOTION_DATABASE_ID, or any key as QSYNC_<SECTION>_<KEY>. A .env file in the working directory is loaded.
//   - Run locally: question-sync scrape --start 49 --end 300 (add --config config.yaml for file overrides).
package cmd

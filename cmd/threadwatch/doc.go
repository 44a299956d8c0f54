// Command threadwatch performs one check of a discussion thread and posts a
// webhook message when the reply count has grown since the previous run.
//
// Configuration comes from THREAD_URL and DISCORD_WEBHOOK (or the
// THREADWATCH_* equivalents), an optional .env file and an optional --config
// file. Exit status is 0 on success or no change, 1 for configuration errors,
// 2 when the thread could not be fetched and 3 for any other failure.
package main

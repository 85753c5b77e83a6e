// Package main provides localization for the previewkit CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Logging":       "ログ",
		"Debug":         "デバッグ",

		// Root command
		"Decode preview frames and thumbnail filmstrips from video files": "動画ファイルからプレビューフレームとサムネイルのフィルムストリップをデコード",

		// Commands
		"Decode one preview frame as PNG":                     "プレビューフレームを1枚PNGとしてデコード",
		"Render a thumbnail filmstrip of a clip as PNG":       "クリップのサムネイルフィルムストリップをPNGとして描画",
		"Replay scrub positions and report what was rendered": "スクラブ位置を再生し、描画された結果を報告",
		"Show version information":                            "バージョン情報を表示",
		"previewkit version %s":                               "previewkit バージョン %s",

		// Common flags
		"YAML configuration file":                           "YAML設定ファイル",
		"Path to the ffmpeg executable":                     "ffmpeg実行ファイルのパス",
		"Log level (debug, info, warn, error)":              "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                           "全てのログ出力を抑制",
		"Save decoded frames and thumbnails for inspection": "デコードしたフレームとサムネイルを確認用に保存",
		"Directory for debug output":                        "デバッグ出力のディレクトリ",
		"Print collected metrics on exit":                   "終了時に収集したメトリクスを表示",

		// Frame flags
		"Timestamp in milliseconds":       "タイムスタンプ（ミリ秒）",
		"Output width":                    "出力の幅",
		"Output height":                   "出力の高さ",
		"Output PNG file path (required)": "出力PNGファイルパス（必須）",

		// Strip flags
		"Thumbnail tier (low, medium, high); picked from --zoom when empty": "サムネイルの階層（low, medium, high）。空の場合は --zoom から選択",
		"Timeline zoom in pixels per millisecond":                           "タイムラインのズーム（ピクセル/ミリ秒）",
		"Clip start in source milliseconds":                                 "クリップの開始位置（ソースのミリ秒）",
		"Clip end in source milliseconds (default: end of file)":            "クリップの終了位置（ソースのミリ秒、デフォルト: ファイルの末尾）",
		"Filmstrip height":                                                  "フィルムストリップの高さ",
		"How long to wait for thumbnails":                                   "サムネイルを待つ時間",

		// Scrub flags
		"Comma separated scrub positions in milliseconds": "カンマ区切りのスクラブ位置（ミリ秒）",
		"Delay between scrub positions":                   "スクラブ位置の間隔",

		// Runtime messages
		"Frame at %d ms saved to %s":                      "%d ms のフレームを %s に保存しました",
		"Waiting for %s thumbnails of %s...":              "%[2]s の %[1]s サムネイルを待機中...",
		"Filmstrip is incomplete: %v":                     "フィルムストリップが不完全です: %v",
		"Filmstrip of %d thumbnails saved to %s":          "%d 枚のサムネイルのフィルムストリップを %s に保存しました",
		"Scrub to %d ms failed: %v":                       "%d ms へのスクラブに失敗しました: %v",
		"Scrubbed %d targets: %d rendered, %d superseded": "%d 件のスクラブ: %d 件描画, %d 件スキップ",
		"Interrupted, shutting down...":                   "中断されました。シャットダウン中...",

		// Error messages
		"A video argument is required":          "動画の引数が必要です",
		"At least one scrub target is required": "スクラブ位置が少なくとも1つ必要です",
	})
}

package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Decoder sessions
		"Opened %s: %s %dx%d, %d ms, %d keyframes":       "%s を開きました: %s %dx%d, %d ms, キーフレーム %d 個",
		"Seek to keyframe %d ms for target %d ms":        "目標 %[2]d ms のためキーフレーム %[1]d ms へシーク",
		"Decode fault at %d ms (%s), reopening %s: %v":   "%d ms でデコード障害 (%s)。%s を開き直します: %v",
		"Decoding %s failed at %d ms: %v":                "%s のデコードが %d ms で失敗しました: %v",
		"Reopened decoder for %s":                        "%s のデコーダーを開き直しました",
		"Closing demuxer of %s: %v":                      "%s のデマルチプレクサを閉じています: %v",

		// Frame cache
		"Frame %s@%d ms (%d bytes) exceeds the cache budget": "フレーム %s@%d ms (%d バイト) がキャッシュ予算を超えています",
		"Invalidated %d frames of %s in [%d, %d] ms":         "%[2]s の [%[3]d, %[4]d] ms のフレーム %[1]d 枚を無効化しました",

		// Thumbnails
		"Started %d thumbnail workers":                                     "サムネイルワーカーを %d 個起動しました",
		"Scheduled %d %s thumbnails for %s every %d ms":                    "%[3]s の %[2]s サムネイル %[1]d 枚を %[4]d ms 間隔で予約しました",
		"Invalidated %d thumbnails of %s in [%d, %d] ms":                   "%[2]s の [%[3]d, %[4]d] ms のサムネイル %[1]d 枚を無効化しました",
		"Cannot open %s for %s thumbnails: %v":                             "%[2]s サムネイル用に %[1]s を開けません: %[3]v",
		"Thumbnail generation for %s stopped at %d ms: %v":                 "%s のサムネイル生成が %d ms で停止しました: %v",
		"Thumbnail budget exhausted; %s strip of %s stops at %d thumbnails": "サムネイル予算が尽きました。%[2]s の %[1]s ストリップは %[3]d 枚で停止します",
		"%s strip of %s complete: %d thumbnails":                           "%[2]s の %[1]s ストリップが完成しました: %[3]d 枚",
		"Evicted %s strip of %s":                                           "%[2]s の %[1]s ストリップを追い出しました",
		"Failed to save debug thumbnail: %v":                               "デバッグ用サムネイルの保存に失敗しました: %v",

		// Preview service
		"Opened %s at %dx%d":                                        "%s を %dx%d で開きました",
		"Cannot open %s: %v":                                        "%s を開けません: %v",
		"Closed %s (%d frames, %d strips released)":                 "%s を閉じました (フレーム %d 枚, ストリップ %d 本を解放)",
		"Invalidated %s in [%d, %d] ms: %d frames, %d thumbnails":   "%s の [%d, %d] ms を無効化しました: フレーム %d 枚, サムネイル %d 枚",
		"Applied %s of clip %s: %d ranges invalidated":              "クリップ %[2]s に %[1]s を適用しました: %[3]d 範囲を無効化",
		"Showing fallback frame for %s at %d ms: %v":                "%s の %d ms に代替フレームを表示します: %v",
		"Failed to save debug frame: %v":                            "デバッグ用フレームの保存に失敗しました: %v",
		"Preview service shut down":                                 "プレビューサービスを終了しました",
	})
}

// Package sweep は放置された未検証アカウントの自動削除ジョブを提供する。
// 検証コードの期限切れから保持期間（デフォルト7日）を超過した未検証の行を
// 定期バッチで削除する。検証済みの行には決して触れない。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention は期限切れ未検証アカウントの保持期間。
const DefaultRetention = 7 * 24 * time.Hour

// AccountDeleter は期限切れ未検証アカウントの削除に必要なインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountDeleter interface {
	DeleteExpiredUnverified(ctx context.Context, olderThan time.Time) (int64, error)
}

// SweptRecorder は削除件数のメトリクス記録インターフェース。
type SweptRecorder interface {
	RecordSweptAccounts(count int64)
}

// SweepJob は放置された未検証アカウントの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
//
// 対象は検証コードの期限がRetention以上前に切れた未検証の行のみ。
// 期限切れ直後の行は次の登録試行での再取得に委ね、削除しない。
type SweepJob struct {
	accounts  AccountDeleter
	logger    *slog.Logger
	metrics   SweptRecorder
	Retention time.Duration
	now       func() time.Time
}

// NewSweepJob は新しいSweepJobを生成する。
// metricsはnilでもよい（記録を省略する）。
func NewSweepJob(accounts AccountDeleter, logger *slog.Logger, metrics SweptRecorder) *SweepJob {
	return &SweepJob{
		accounts:  accounts,
		logger:    logger,
		metrics:   metrics,
		Retention: DefaultRetention,
		now:       time.Now,
	}
}

// Run は保持期間を超過した未検証アカウントを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	olderThan := j.now().Add(-j.Retention)
	deletedCount, err := j.accounts.DeleteExpiredUnverified(ctx, olderThan)
	if err != nil {
		j.logger.Error("未検証アカウントの掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("未検証アカウントの掃除に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSweptAccounts(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("未検証アカウントの掃除ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunLoop はintervalごとにRunを実行し続ける。
// コンテキストのキャンセルで停止する。個々の実行の失敗はログに残して継続する。
func (j *SweepJob) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("掃除ワーカーを停止します")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("掃除ジョブが失敗しました。次の周期で再試行します",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/newsdrop/internal/dispatch"
	"github.com/hitoshi/newsdrop/internal/model"
)

// 手動トリガの実行上限時間
const manualDispatchTimeout = 5 * time.Minute

// DispatchRunnerInterface は手動配信トリガが必要とするスケジューラインターフェース。
type DispatchRunnerInterface interface {
	// RunOnce は1回の配信パスを実行する。
	// 実行中のパスがある場合はErrPassInProgressを返す。
	RunOnce(ctx context.Context, tick time.Time) error
}

// DispatchHandler は手動配信トリガのHTTPハンドラー。
type DispatchHandler struct {
	runner DispatchRunnerInterface
}

// NewDispatchHandler はDispatchHandlerを生成する。
func NewDispatchHandler(runner DispatchRunnerInterface) *DispatchHandler {
	return &DispatchHandler{
		runner: runner,
	}
}

// dispatchRunResponse は手動トリガのAPIレスポンス。
type dispatchRunResponse struct {
	Status string    `json:"status"`
	Tick   time.Time `json:"tick"`
}

// Run は1回の配信パスを手動で実行する。
// 通常のティックと同一のセマンティクス（対象判定、ケイデンスゲート、台帳記録）で動作する。
// POST /api/dispatch/run
func (h *DispatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	tick := time.Now().UTC().Truncate(time.Minute)

	// パスの途中でクライアントが切断しても配信を中断しないよう、
	// リクエストコンテキストから切り離して実行する。
	ctx, cancel := context.WithTimeout(context.Background(), manualDispatchTimeout)
	defer cancel()

	if err := h.runner.RunOnce(ctx, tick); err != nil {
		if errors.Is(err, dispatch.ErrPassInProgress) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewDispatchInProgressError())
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dispatchRunResponse{
		Status: "completed",
		Tick:   tick,
	})
}

package gettask

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/saga/internal/service/models/taskstate"
	"github.com/corray333/backend-labs/saga/internal/transport/http/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type repository interface {
	Get(ctx context.Context, taskID string) (*taskstate.TaskState, error)
}

// GetTask handles the task state request.
//
//	@Summary	State of a consumed task
//	@Tags		tasks
//	@Produce	json
//	@Param		id	path		string	true	"Task ID"
//	@Success	200	{object}	taskstate.TaskState
//	@Failure	400	{object}	response.Error
//	@Failure	404	{object}	response.Error
//	@Router		/tasks/{id} [get]
func GetTask(w http.ResponseWriter, r *http.Request, repo repository) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "invalid task id")

		return
	}

	state, err := repo.Get(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, taskstate.ErrNotFound) {
			response.Fail(w, http.StatusNotFound, err.Error())

			return
		}
		response.Fail(w, http.StatusInternalServerError, err.Error())
		slog.Error("Error reading task state", "error", err, "task_id", id)

		return
	}

	response.JSON(w, http.StatusOK, state)
}

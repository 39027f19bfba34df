package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
)

func newTestService() (*TaskService, *fakeRepository, *fakeDispatcher) {
	repo := newFakeRepository()
	disp := newFakeDispatcher()
	svc := New(repo, disp, task.NewTemplateRegistry(), 0, 0, 0, nil, nil, nil)
	return svc, repo, disp
}

func TestCreateTaskPersistsAndDispatchesFirstAttempt(t *testing.T) {
	svc, _, disp := newTestService()

	created, err := svc.CreateTask(context.Background(), CreateTaskInput{
		Name:      "summarize doc",
		Prompt:    "summarize this document",
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusQueued, created.Status)
	assert.Len(t, disp.submitted, 1)
	assert.Equal(t, created.ID.String(), disp.submitted[0].args["task_id"])
}

func TestCreateTaskWithMissingParentFails(t *testing.T) {
	svc, _, _ := newTestService()

	missingParent := task.Task{}.ID // zero uuid, never created
	_, err := svc.CreateTask(context.Background(), CreateTaskInput{
		Name:         "child",
		Prompt:       "child prompt",
		ParentTaskID: &missingParent,
	})
	require.Error(t, err)
	var pnf *domainerrors.ParentNotFoundError
	assert.ErrorAs(t, err, &pnf)
}

func TestRetryTaskRequiresFailedStatus(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "n", Prompt: "p"})
	require.NoError(t, err)

	_, err = svc.RetryTask(context.Background(), created.ID)
	require.Error(t, err)
	var pe *domainerrors.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domainerrors.PreconditionRetryNotAllowed, pe.Kind)
}

func TestRetryTaskRespectsRetryBudget(t *testing.T) {
	svc, repo, _ := newTestService()

	created, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "n", Prompt: "p", MaxRetries: 1})
	require.NoError(t, err)

	// Drive the task to failed, then exhaust its one retry.
	latest, err := repo.GetLatestExecutionForTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(context.Background(), nil, created.ID, latest.DispatchID, "boom", "Err"))

	retried, err := svc.RetryTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, retried.RetryCount)

	latest, err = repo.GetLatestExecutionForTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(context.Background(), nil, created.ID, latest.DispatchID, "boom again", "Err"))

	_, err = svc.RetryTask(context.Background(), created.ID)
	require.Error(t, err)
	var pe *domainerrors.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domainerrors.PreconditionRetryLimit, pe.Kind)
}

func TestCancelTaskRevokesAndMarksCancelled(t *testing.T) {
	svc, _, disp := newTestService()

	created, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "n", Prompt: "p"})
	require.NoError(t, err)

	cancelled, err := svc.CancelTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)
	assert.Len(t, disp.revoked, 1)
}

func TestCancelTaskRejectsTerminalTask(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "n", Prompt: "p"})
	require.NoError(t, err)

	_, err = svc.CancelTask(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = svc.CancelTask(context.Background(), created.ID)
	require.Error(t, err)
	var pe *domainerrors.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domainerrors.PreconditionCancelNotAllowed, pe.Kind)
}

func TestCancelTaskSwallowsRevokeFailure(t *testing.T) {
	svc, _, disp := newTestService()
	disp.revokeErr = errDispatchFailed

	created, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "n", Prompt: "p"})
	require.NoError(t, err)

	cancelled, err := svc.CancelTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)
}

func TestBatchCreateTasksRejectsOutOfRangeSize(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.BatchCreateTasks(context.Background(), nil)
	require.Error(t, err)

	items := make([]CreateTaskInput, 51)
	for i := range items {
		items[i] = CreateTaskInput{Name: "n", Prompt: "p"}
	}
	_, err = svc.BatchCreateTasks(context.Background(), items)
	require.Error(t, err)
}

func TestBatchCreateTasksAllOrNothingOnMissingParent(t *testing.T) {
	svc, _, _ := newTestService()

	missingParent := task.Task{}.ID
	_, err := svc.BatchCreateTasks(context.Background(), []CreateTaskInput{
		{Name: "a", Prompt: "p"},
		{Name: "b", Prompt: "p", ParentTaskID: &missingParent},
	})
	require.Error(t, err)
}

func TestBatchCreateTasksDispatchesEachItem(t *testing.T) {
	svc, _, disp := newTestService()

	items := []CreateTaskInput{
		{Name: "a", Prompt: "p1"},
		{Name: "b", Prompt: "p2"},
		{Name: "c", Prompt: "p3"},
	}
	out, err := svc.BatchCreateTasks(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Len(t, disp.submitted, 3)
}

func TestBatchCreateTasksIndividualDispatchFailureMarksOnlyThatTaskFailed(t *testing.T) {
	svc, repo, disp := newTestService()
	disp.failCallNums[2] = true // the second item's dispatch fails

	items := []CreateTaskInput{
		{Name: "a", Prompt: "p1"},
		{Name: "b", Prompt: "p2"},
	}
	out, err := svc.BatchCreateTasks(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, out, 2)

	firstStored, err := repo.GetByID(context.Background(), out[0].ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusQueued, firstStored.Status)

	secondStored, err := repo.GetByID(context.Background(), out[1].ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, secondStored.Status)
}

func TestCreateTaskFromTemplateDerivesNameWhenAbsent(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.CreateTaskFromTemplate(context.Background(), "summarize", "some long input text", "", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Summarize Task", created.Name)
}

func TestGetTaskLineageClampsDepth(t *testing.T) {
	svc, _, _ := newTestService()

	root, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "root", Prompt: "p"})
	require.NoError(t, err)

	child, err := svc.CreateTask(context.Background(), CreateTaskInput{Name: "child", Prompt: "p", ParentTaskID: &root.ID})
	require.NoError(t, err)

	lineage, err := svc.GetTaskLineage(context.Background(), child.ID, 999)
	require.NoError(t, err)
	require.Len(t, lineage.Ancestors, 1)
	assert.Equal(t, root.ID, lineage.Ancestors[0].Task.ID)

	rootLineage, err := svc.GetTaskLineage(context.Background(), root.ID, 5)
	require.NoError(t, err)
	require.Len(t, rootLineage.Descendants, 1)
	assert.Equal(t, child.ID, rootLineage.Descendants[0].Task.ID)
}

func TestGetTaskNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetTask(context.Background(), task.Task{}.ID)
	require.Error(t, err)
	var nf *domainerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

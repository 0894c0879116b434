package services

import (
	"testing"
	"time"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestActivateValidation(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	workflow := newTestWorkflow(t, db, "w_basic", intPtr(24), "步骤A")
	svc := NewInstanceService(db, newSilentNotify())

	tests := []struct {
		name string
		req  ActivateRequest
		code int
	}{
		{
			name: "缺少transition_properties",
			req:  ActivateRequest{CarID: car.ID, WorkflowID: workflow.ID},
			code: apperrors.CodeInvalidParam,
		},
		{
			name: "custom_fields缺失",
			req: ActivateRequest{CarID: car.ID, WorkflowID: workflow.ID,
				TransitionProps: models.JSON(`{"other":1}`)},
			code: apperrors.CodeInvalidParam,
		},
		{
			name: "custom_fields不是对象",
			req: ActivateRequest{CarID: car.ID, WorkflowID: workflow.ID,
				TransitionProps: models.JSON(`{"custom_fields":"x"}`)},
			code: apperrors.CodeInvalidParam,
		},
		{
			name: "有父实例时缺少insight",
			req: ActivateRequest{CarID: car.ID, WorkflowID: workflow.ID,
				ParentInstanceID: uintPtr(999),
				TransitionProps:  models.JSON(`{"custom_fields":{},"car_snapshot":{}}`)},
			code: apperrors.CodeInvalidParam,
		},
		{
			name: "有父实例时缺少car_snapshot",
			req: ActivateRequest{CarID: car.ID, WorkflowID: workflow.ID,
				ParentInstanceID: uintPtr(999),
				TransitionProps:  models.JSON(`{"custom_fields":{},"insight":"x"}`)},
			code: apperrors.CodeInvalidParam,
		},
		{
			name: "无效的final_outcome",
			req: ActivateRequest{CarID: car.ID, WorkflowID: workflow.ID,
				FinalOutcome:    strPtr("half_price"),
				TransitionProps: validProps(false)},
			code: apperrors.CodeInvalidParam,
		},
		{
			name: "目标工作流不存在",
			req: ActivateRequest{CarID: car.ID, WorkflowID: 9999,
				TransitionProps: validProps(false)},
			code: apperrors.CodeNotFound,
		},
		{
			name: "车辆不存在",
			req: ActivateRequest{CarID: 9999, WorkflowID: workflow.ID,
				TransitionProps: validProps(false)},
			code: apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Activate(tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.AsAppError(err).Code)

			// 校验失败不允许留下实例
			var count int64
			db.Model(&models.WorkflowInstance{}).Count(&count)
			assert.Zero(t, count)
		})
	}
}

func TestActivateCreatesRunningInstanceWithSLA(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	workflow := newTestWorkflow(t, db, "w_sla", intPtr(24), "步骤A")
	svc := NewInstanceService(db, newSilentNotify())

	before := time.Now()
	result, err := svc.Activate(ActivateRequest{
		CarID:           car.ID,
		WorkflowID:      workflow.ID,
		TransitionProps: validProps(false),
	})
	require.NoError(t, err)

	instance := result.Instance
	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	require.NotNil(t, instance.SLADeadline)
	expected := instance.StartedAt.Add(24 * time.Hour)
	assert.WithinDuration(t, expected, *instance.SLADeadline, time.Second)
	assert.False(t, instance.StartedAt.Before(before.Add(-time.Second)))
	assert.NotEmpty(t, result.Message)
}

func TestActivateNoSLAWhenWorkflowHasNone(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	workflow := newTestWorkflow(t, db, "w_nosla", nil, "步骤A")
	svc := NewInstanceService(db, newSilentNotify())

	result, err := svc.Activate(ActivateRequest{
		CarID:           car.ID,
		WorkflowID:      workflow.ID,
		TransitionProps: validProps(false),
	})
	require.NoError(t, err)
	assert.Nil(t, result.Instance.SLADeadline)
}

func TestActivateWritesParentOutcomeWithoutTouchingStatus(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	parentWF := newTestWorkflow(t, db, "w_parent", intPtr(24), "步骤A")
	childWF := newTestWorkflow(t, db, "w_child", intPtr(24), "步骤A")
	svc := NewInstanceService(db, newSilentNotify())

	parentResult, err := svc.Activate(ActivateRequest{
		CarID:           car.ID,
		WorkflowID:      parentWF.ID,
		TransitionProps: validProps(false),
	})
	require.NoError(t, err)
	parent := parentResult.Instance

	childResult, err := svc.Activate(ActivateRequest{
		CarID:            car.ID,
		WorkflowID:       childWF.ID,
		ParentInstanceID: &parent.ID,
		FinalOutcome:     strPtr(models.FinalOutcomeDiscount),
		TransitionProps:  validProps(true),
	})
	require.NoError(t, err)

	var reloaded models.WorkflowInstance
	require.NoError(t, db.First(&reloaded, parent.ID).Error)
	require.NotNil(t, reloaded.FinalOutcome)
	assert.Equal(t, models.FinalOutcomeDiscount, *reloaded.FinalOutcome)
	// 回写最终结局不改父实例状态
	assert.Equal(t, models.InstanceStatusRunning, reloaded.Status)
	assert.Equal(t, parent.ID, *childResult.Instance.ParentInstanceID)
}

func TestActivateNeverDeduplicates(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	workflow := newTestWorkflow(t, db, "w_dup", intPtr(24), "步骤A")
	svc := NewInstanceService(db, newSilentNotify())

	req := ActivateRequest{
		CarID:           car.ID,
		WorkflowID:      workflow.ID,
		TransitionProps: validProps(false),
	}

	first, err := svc.Activate(req)
	require.NoError(t, err)
	second, err := svc.Activate(req)
	require.NoError(t, err)

	// 每次调用都是新事件，不做幂等去重
	assert.NotEqual(t, first.Instance.ID, second.Instance.ID)

	var count int64
	db.Model(&models.WorkflowInstance{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestActivatePreconditionRejectsBeforeInsert(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	negotiation := newTestWorkflow(t, db, models.WorkflowCodeNegotiation, intPtr(24), "报价沟通")
	svc := NewInstanceService(db, newSilentNotify())

	req := ActivateRequest{
		CarID:           car.ID,
		WorkflowID:      negotiation.ID,
		TransitionProps: validProps(false),
	}

	// 无报价单：域前置条件不满足
	_, err := svc.Activate(req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.AsAppError(err).Code)

	var count int64
	db.Model(&models.WorkflowInstance{}).Count(&count)
	assert.Zero(t, count)

	// 补报价单后激活成功
	require.NoError(t, db.Create(&models.Quotation{CarID: car.ID, QuotedPrice: 208000}).Error)
	_, err = svc.Activate(req)
	require.NoError(t, err)
}

func TestManualTransitionScenario(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	w1 := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A", "步骤B")
	w2 := newTestWorkflow(t, db, "w2", intPtr(48), "步骤C")
	newTestTransition(t, db, w1.ID, w2.ID, "", 10)

	svc := NewInstanceService(db, newSilentNotify())
	resolver := NewTransitionService(db)

	activated, err := svc.Activate(ActivateRequest{
		CarID:           car.ID,
		WorkflowID:      w1.ID,
		TransitionProps: validProps(false),
	})
	require.NoError(t, err)
	instance := activated.Instance

	// 只完成步骤A：转移不可用
	_, err = svc.RecordStepExecution(RecordStepRequest{
		InstanceID: instance.ID, StepID: stepID(t, db, w1.ID, 1), Status: models.StepExecutionSuccess,
	})
	require.NoError(t, err)
	options, err := resolver.AvailableTransitions(instance.ID)
	require.NoError(t, err)
	assert.Empty(t, options)

	// 完成步骤B：门槛满足
	_, err = svc.RecordStepExecution(RecordStepRequest{
		InstanceID: instance.ID, StepID: stepID(t, db, w1.ID, 2), Status: models.StepExecutionSuccess,
	})
	require.NoError(t, err)
	options, err = resolver.AvailableTransitions(instance.ID)
	require.NoError(t, err)
	require.Len(t, options, 1)

	// 手动转移到W2
	next, err := svc.ManualTransition(instance.ID, TransitionRequest{TargetWorkflowID: w2.ID})
	require.NoError(t, err)

	var old models.WorkflowInstance
	require.NoError(t, db.First(&old, instance.ID).Error)
	assert.Equal(t, models.InstanceStatusCompleted, old.Status)
	require.NotNil(t, old.CompletedAt)

	assert.Equal(t, models.InstanceStatusRunning, next.Status)
	assert.Equal(t, car.ID, next.CarID)
	assert.Equal(t, w2.ID, next.WorkflowID)
	require.NotNil(t, next.SLADeadline)
	assert.WithinDuration(t, next.StartedAt.Add(48*time.Hour), *next.SLADeadline, time.Second)
	// 手动转移按车辆连续性承接，不写parent_instance_id
	assert.Nil(t, next.ParentInstanceID)
}

func TestManualTransitionDefaultSLA(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	w1 := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A")
	w2 := newTestWorkflow(t, db, "w2_nosla", nil, "步骤C")
	svc := NewInstanceService(db, newSilentNotify())

	activated, err := svc.Activate(ActivateRequest{
		CarID: car.ID, WorkflowID: w1.ID, TransitionProps: validProps(false),
	})
	require.NoError(t, err)

	next, err := svc.ManualTransition(activated.Instance.ID, TransitionRequest{TargetWorkflowID: w2.ID})
	require.NoError(t, err)

	// 目标无SLA配置时兜底24小时
	require.NotNil(t, next.SLADeadline)
	assert.WithinDuration(t, next.StartedAt.Add(24*time.Hour), *next.SLADeadline, time.Second)
}

func TestManualTransitionFailures(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	w1 := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A")
	inactive := newTestWorkflow(t, db, "w_inactive", intPtr(24), "步骤C")
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	svc := NewInstanceService(db, newSilentNotify())
	activated, err := svc.Activate(ActivateRequest{
		CarID: car.ID, WorkflowID: w1.ID, TransitionProps: validProps(false),
	})
	require.NoError(t, err)

	_, err = svc.ManualTransition(9999, TransitionRequest{TargetWorkflowID: w1.ID})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)

	_, err = svc.ManualTransition(activated.Instance.ID, TransitionRequest{TargetWorkflowID: 9999})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)

	_, err = svc.ManualTransition(activated.Instance.ID, TransitionRequest{TargetWorkflowID: inactive.ID})
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.AsAppError(err).Code)
}

func TestRecordStepExecutionValidatesStepOwnership(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	w1 := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A")
	w2 := newTestWorkflow(t, db, "w2", intPtr(24), "步骤C")
	svc := NewInstanceService(db, newSilentNotify())

	activated, err := svc.Activate(ActivateRequest{
		CarID: car.ID, WorkflowID: w1.ID, TransitionProps: validProps(false),
	})
	require.NoError(t, err)

	_, err = svc.RecordStepExecution(RecordStepRequest{
		InstanceID: activated.Instance.ID,
		StepID:     stepID(t, db, w2.ID, 1),
		Status:     models.StepExecutionSuccess,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestGetWithProgressPendingStep(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	w1 := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A", "步骤B")
	svc := NewInstanceService(db, newSilentNotify())

	activated, err := svc.Activate(ActivateRequest{
		CarID: car.ID, WorkflowID: w1.ID, TransitionProps: validProps(false),
	})
	require.NoError(t, err)
	instance := activated.Instance

	detail, err := svc.GetWithProgress(instance.ID)
	require.NoError(t, err)
	assert.False(t, detail.Progress.Complete)
	require.NotNil(t, detail.Progress.PendingStep)
	assert.Equal(t, 1, detail.Progress.PendingStep.StepOrder)

	// 失败执行不推进pending step
	_, err = svc.RecordStepExecution(RecordStepRequest{
		InstanceID: instance.ID, StepID: stepID(t, db, w1.ID, 1), Status: models.StepExecutionFailure,
	})
	require.NoError(t, err)
	detail, err = svc.GetWithProgress(instance.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Progress.PendingStep)
	assert.Equal(t, 1, detail.Progress.PendingStep.StepOrder)

	// 成功后pending step前移
	_, err = svc.RecordStepExecution(RecordStepRequest{
		InstanceID: instance.ID, StepID: stepID(t, db, w1.ID, 1), Status: models.StepExecutionSuccess,
	})
	require.NoError(t, err)
	detail, err = svc.GetWithProgress(instance.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Progress.PendingStep)
	assert.Equal(t, 2, detail.Progress.PendingStep.StepOrder)
}

func TestGetCarPipeline(t *testing.T) {
	db := newTestDB(t)
	car := newTestCar(t, db)
	w1 := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A")
	w2 := newTestWorkflow(t, db, "w2", intPtr(24), "步骤C")
	newTestTransition(t, db, w1.ID, w2.ID, "条件", 10)
	svc := NewInstanceService(db, newSilentNotify())

	_, err := svc.Activate(ActivateRequest{
		CarID: car.ID, WorkflowID: w1.ID, TransitionProps: validProps(false),
	})
	require.NoError(t, err)

	pipeline, err := svc.GetCarPipeline(car.ID)
	require.NoError(t, err)
	assert.Equal(t, car.ID, pipeline.Car.ID)
	assert.Len(t, pipeline.Instances, 1)
	assert.Len(t, pipeline.Catalog, 2)
	assert.Len(t, pipeline.Transitions, 1)
}

// stepID 按排序键取步骤ID
func stepID(t *testing.T, db *gorm.DB, workflowID uint, order int) uint {
	t.Helper()
	var step models.WorkflowStep
	require.NoError(t, db.Where("workflow_id = ? AND step_order = ?", workflowID, order).First(&step).Error)
	return step.ID
}

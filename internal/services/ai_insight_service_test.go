package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"
	"salesflow/pkg/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// aiStub 可计数的AI webhook桩
type aiStub struct {
	server   *httptest.Server
	calls    int32
	lastBody map[string]interface{}
}

func newAIStub(t *testing.T, status int, response string) *aiStub {
	t.Helper()
	stub := &aiStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&stub.calls, 1)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		stub.lastBody = body
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *aiStub) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

const aiOKResponse = `{"analysis":{"text":"建议进入议价流程"},"selected_transition_id":7,"target_workflow_id":3}`

func newInsightService(db *gorm.DB, url string) *AIInsightService {
	return NewAIInsightService(db, webhook.NewClient(2*time.Second), url)
}

// 车 + 运行中来源实例
func newInsightFixture(t *testing.T, db *gorm.DB) (*models.Car, *models.WorkflowInstance) {
	t.Helper()
	car := newTestCar(t, db)
	workflow := newTestWorkflow(t, db, "w1", intPtr(24), "步骤A")
	instance := &models.WorkflowInstance{
		CarID:      car.ID,
		WorkflowID: workflow.ID,
		Status:     models.InstanceStatusRunning,
		StartedAt:  time.Now(),
	}
	require.NoError(t, db.Create(instance).Error)
	return car, instance
}

func TestInsightFirstRequestCallsWebhook(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	result, err := service.Request(InsightRequest{
		CarID:            car.ID,
		SourceInstanceID: instance.ID,
		Phone:            "13800138000",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.callCount())
	assert.True(t, result.IsNew)
	assert.False(t, result.Processing)
	require.NotNil(t, result.Insight)
	assert.True(t, result.Insight.IsComplete())
	assert.Equal(t, uint(7), *result.Insight.SelectedTransitionID)
	assert.Equal(t, uint(3), *result.Insight.TargetWorkflowID)
	assert.JSONEq(t, `{"text":"建议进入议价流程"}`, string(result.Insight.Summary))
	assert.Empty(t, result.History)

	// 首次调用previousInsight为空
	assert.Nil(t, stub.lastBody["previousInsight"])
	assert.Equal(t, "13800138000", stub.lastBody["phoneNumber"])
}

func TestInsightCompleteResultIsReused(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	req := InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID}
	first, err := service.Request(req)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// 重复请求命中缓存，webhook不再调用
	second, err := service.Request(req)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Insight.ID, second.Insight.ID)
	assert.Equal(t, 1, stub.callCount())
}

func TestInsightProcessingDebounce(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	// 窗口内的处理中记录：返回Processing信号，不重复调用
	insight := &models.AIInsight{
		CarID:            car.ID,
		SourceInstanceID: instance.ID,
		Summary:          models.JSON(`{"processing":true}`),
	}
	require.NoError(t, db.Create(insight).Error)

	result, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID})
	require.NoError(t, err)

	assert.True(t, result.Processing)
	assert.Nil(t, result.Insight)
	assert.Equal(t, 0, stub.callCount())
}

func TestInsightStaleProcessingReinvoked(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	// 超出防抖窗口的处理中记录：视为失联，复用该行重新调用
	insight := &models.AIInsight{
		CarID:            car.ID,
		SourceInstanceID: instance.ID,
		Summary:          models.JSON(`{"processing":true}`),
	}
	require.NoError(t, db.Create(insight).Error)
	require.NoError(t, db.Model(insight).
		UpdateColumn("created_at", time.Now().Add(-insightDebounceWindow-time.Minute)).Error)

	result, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.callCount())
	assert.False(t, result.Processing)
	assert.Equal(t, insight.ID, result.Insight.ID)
	assert.True(t, result.Insight.IsComplete())

	var count int64
	db.Model(&models.AIInsight{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestInsightFeedbackArchivesAndReinvokes(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	req := InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID}
	first, err := service.Request(req)
	require.NoError(t, err)
	insightID := first.Insight.ID

	// 对完成态提交反馈：旧推荐归档，活跃行重置并重新调用
	req.UserFeedback = "客户更倾向直接签约"
	second, err := service.Request(req)
	require.NoError(t, err)

	assert.Equal(t, 2, stub.callCount())
	assert.Equal(t, insightID, second.Insight.ID)
	require.Len(t, second.History, 1)
	assert.JSONEq(t, `{"text":"建议进入议价流程"}`, string(second.History[0].Summary))
	assert.Equal(t, "客户更倾向直接签约", second.History[0].UserFeedback)

	// 反馈和旧推荐随调用透传给AI
	assert.Equal(t, "客户更倾向直接签约", stub.lastBody["feedback"])
	assert.NotNil(t, stub.lastBody["previousInsight"])

	var archiveCount int64
	db.Model(&models.OldAIInsight{}).Count(&archiveCount)
	assert.Equal(t, int64(1), archiveCount)
}

func TestInsightFailureCleansPlaceholder(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusInternalServerError, "boom")
	service := newInsightService(db, stub.server.URL)

	_, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUpstream, apperrors.AsAppError(err).Code)

	// 本次新建的占位行必须清理，否则后续请求卡在处理中
	var count int64
	db.Model(&models.AIInsight{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestInsightFailurePreservesExistingRow(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)

	okStub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, okStub.server.URL)

	req := InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID}
	first, err := service.Request(req)
	require.NoError(t, err)

	// 反馈修订时AI失败：归档已完成，活跃行保留为处理中而不是被删
	failStub := newAIStub(t, http.StatusBadGateway, "upstream down")
	failing := newInsightService(db, failStub.server.URL)

	req.UserFeedback = "推荐不合理"
	_, err = failing.Request(req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUpstream, apperrors.AsAppError(err).Code)

	var survivor models.AIInsight
	require.NoError(t, db.First(&survivor, first.Insight.ID).Error)
	assert.True(t, survivor.IsProcessing())
	assert.Nil(t, survivor.SelectedTransitionID)
	assert.Nil(t, survivor.TargetWorkflowID)

	var archiveCount int64
	db.Model(&models.OldAIInsight{}).Count(&archiveCount)
	assert.Equal(t, int64(1), archiveCount)
}

func TestInsightArrayResponseAccepted(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, `[`+aiOKResponse+`]`)
	service := newInsightService(db, stub.server.URL)

	result, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID})
	require.NoError(t, err)
	assert.True(t, result.Insight.IsComplete())
	assert.Equal(t, uint(3), *result.Insight.TargetWorkflowID)
}

func TestInsightMalformedResponseRejected(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, `{"analysis":{"text":"缺少推荐字段"}}`)
	service := newInsightService(db, stub.server.URL)

	_, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUpstream, apperrors.AsAppError(err).Code)

	var count int64
	db.Model(&models.AIInsight{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestInsightSourceValidation(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	otherCar := &models.Car{VIN: "LSGKB54E8EA999999", Make: "BYD", Model: "Han", Year: 2024, Status: models.CarStatusInStock}
	require.NoError(t, db.Create(otherCar).Error)

	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	// 来源实例不存在
	_, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: 9999})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)

	// 来源实例属于另一辆车
	_, err = service.Request(InsightRequest{CarID: otherCar.ID, SourceInstanceID: instance.ID})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	assert.Equal(t, 0, stub.callCount())
}

func TestRateInsight(t *testing.T) {
	db := newTestDB(t)
	car, instance := newInsightFixture(t, db)
	stub := newAIStub(t, http.StatusOK, aiOKResponse)
	service := newInsightService(db, stub.server.URL)

	result, err := service.Request(InsightRequest{CarID: car.ID, SourceInstanceID: instance.ID})
	require.NoError(t, err)

	rated, err := service.Rate(result.Insight.ID, false)
	require.NoError(t, err)
	require.NotNil(t, rated.IsPositive)
	assert.False(t, *rated.IsPositive)

	_, err = service.Rate(9999, true)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.AsAppError(err).Code)
}

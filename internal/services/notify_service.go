package services

import (
	"encoding/json"
	"sync"

	"salesflow/internal/models"
	"salesflow/pkg/logger"
	"salesflow/pkg/webhook"

	"github.com/google/uuid"
)

// NotifyPayloadBuilder 按目标工作流构造通知webhook载荷
// 不同工作流声明的下游字段差异很大，新工作流通过注册接入而不是加分支
type NotifyPayloadBuilder func(ctx *NotifyContext) map[string]interface{}

// NotifyContext 构造载荷可用的上下文
type NotifyContext struct {
	Instance *models.WorkflowInstance
	Workflow *models.WorkflowDefinition
	Car      *models.Car
	Phone    string
	Extra    models.JSON // 调用方附带的下游载荷
}

// NotifyService 自动化通知服务
// 实例落库后异步触发，失败只记日志，不回滚实例创建
type NotifyService struct {
	client *webhook.Client
	url    string

	mu       sync.RWMutex
	builders map[string]NotifyPayloadBuilder
}

// NewNotifyService 创建通知服务
func NewNotifyService(client *webhook.Client, url string) *NotifyService {
	s := &NotifyService{
		client:   client,
		url:      url,
		builders: make(map[string]NotifyPayloadBuilder),
	}
	s.registerDefaults()
	return s
}

// Register 注册工作流专属的载荷构造器
func (s *NotifyService) Register(workflowCode string, builder NotifyPayloadBuilder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builders[workflowCode] = builder
}

// BuildPayload 构造通知载荷（未注册的工作流走默认形态）
func (s *NotifyService) BuildPayload(ctx *NotifyContext) map[string]interface{} {
	s.mu.RLock()
	builder, ok := s.builders[ctx.Workflow.Code]
	s.mu.RUnlock()

	if !ok {
		builder = defaultPayload
	}

	payload := builder(ctx)
	payload["delivery_id"] = uuid.New().String()
	payload["workflow_code"] = ctx.Workflow.Code
	return payload
}

// DispatchAsync 异步派发通知（至少一次/尽力而为）
func (s *NotifyService) DispatchAsync(ctx *NotifyContext) {
	payload := s.BuildPayload(ctx)

	go func() {
		appLogger := logger.GetLogger()
		if s.url == "" {
			appLogger.Debugf("通知webhook未配置，跳过派发: instance=%d", ctx.Instance.ID)
			return
		}
		if _, err := s.client.PostJSON(s.url, payload); err != nil {
			// 实例已落库且是事实来源，通知失败不重试不回滚
			appLogger.Warnf("通知webhook派发失败: instance=%d workflow=%s err=%v",
				ctx.Instance.ID, ctx.Workflow.Code, err)
			return
		}
		appLogger.Infof("通知webhook派发成功: instance=%d workflow=%s delivery=%v",
			ctx.Instance.ID, ctx.Workflow.Code, payload["delivery_id"])
	}()
}

// 默认载荷：只带内部记录标识
func defaultPayload(ctx *NotifyContext) map[string]interface{} {
	return map[string]interface{}{
		"instance_id": ctx.Instance.ID,
		"car_id":      ctx.Instance.CarID,
	}
}

// 注册内置工作流的载荷构造器
func (s *NotifyService) registerDefaults() {
	// 试驾邀约：下游短信通道需要客户联系方式
	s.builders[models.WorkflowCodeTestDrive] = func(ctx *NotifyContext) map[string]interface{} {
		payload := defaultPayload(ctx)
		payload["phone"] = ctx.Phone
		payload["customer_name"] = ctx.Car.CustomerName
		return payload
	}

	// 议价：下游需要车辆报价上下文的反范式字段
	s.builders[models.WorkflowCodeNegotiation] = func(ctx *NotifyContext) map[string]interface{} {
		payload := defaultPayload(ctx)
		payload["phone"] = ctx.Phone
		payload["vin"] = ctx.Car.VIN
		payload["make"] = ctx.Car.Make
		payload["model"] = ctx.Car.Model
		payload["asking_price"] = ctx.Car.AskingPrice
		return payload
	}

	// 交车：完整反范式载荷加调用方透传字段
	s.builders[models.WorkflowCodeDelivery] = func(ctx *NotifyContext) map[string]interface{} {
		payload := defaultPayload(ctx)
		payload["phone"] = ctx.Phone
		payload["vin"] = ctx.Car.VIN
		payload["make"] = ctx.Car.Make
		payload["model"] = ctx.Car.Model
		payload["year"] = ctx.Car.Year
		payload["customer_name"] = ctx.Car.CustomerName
		if len(ctx.Extra) > 0 {
			var extra map[string]interface{}
			if err := json.Unmarshal(ctx.Extra, &extra); err == nil {
				for k, v := range extra {
					payload[k] = v
				}
			}
		}
		return payload
	}
}

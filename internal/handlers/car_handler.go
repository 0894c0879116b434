package handlers

import (
	"strconv"

	"salesflow/internal/services"
	"salesflow/pkg/jwt"
	"salesflow/pkg/pagination"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// CarHandler 车辆处理器
type CarHandler struct {
	carService       *services.CarService
	quotationService *services.QuotationService
	instanceService  *services.InstanceService
}

// NewCarHandler 创建车辆处理器
func NewCarHandler(carService *services.CarService, quotationService *services.QuotationService, instanceService *services.InstanceService) *CarHandler {
	return &CarHandler{
		carService:       carService,
		quotationService: quotationService,
		instanceService:  instanceService,
	}
}

// Create 创建车辆
func (h *CarHandler) Create(c *gin.Context) {
	var req services.CreateCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	car, err := h.carService.Create(req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, car)
}

// Update 更新车辆
func (h *CarHandler) Update(c *gin.Context) {
	carID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的车辆ID")
		return
	}

	var req services.UpdateCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	car, err := h.carService.Update(uint(carID), req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, car)
}

// GetByID 根据ID获取车辆
func (h *CarHandler) GetByID(c *gin.Context) {
	carID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的车辆ID")
		return
	}

	car, err := h.carService.GetByID(uint(carID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, car)
}

// List 获取车辆列表
func (h *CarHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	search := c.Query("search")
	status := c.Query("status")

	cars, total, err := h.carService.List(params, search, status)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, cars, pageInfo)
}

// GetPipeline 获取车辆的流程全景（实例+目录+转移图）
func (h *CarHandler) GetPipeline(c *gin.Context) {
	carID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的车辆ID")
		return
	}

	pipeline, err := h.instanceService.GetCarPipeline(uint(carID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, pipeline)
}

// CreateQuotation 为车辆创建报价单
func (h *CarHandler) CreateQuotation(c *gin.Context) {
	carID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的车辆ID")
		return
	}

	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	var req services.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	quotation, err := h.quotationService.Create(uint(carID), userClaims.UserID, req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, quotation)
}

// GetLatestQuotation 获取车辆最新报价单
func (h *CarHandler) GetLatestQuotation(c *gin.Context) {
	carID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的车辆ID")
		return
	}

	quotation, err := h.quotationService.GetLatestByCar(uint(carID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, quotation)
}

// ListQuotations 获取车辆的报价单列表
func (h *CarHandler) ListQuotations(c *gin.Context) {
	carID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的车辆ID")
		return
	}

	quotations, err := h.quotationService.ListByCar(uint(carID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, quotations)
}

// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// 生成任务
	generations := v1.Group("/generations")
	{
		generations.POST("", h.Generation.Submit)
		generations.GET("", h.Generation.List)
		generations.GET("/:jid", h.Generation.Get)
		generations.POST("/:jid/cancel", h.Generation.Cancel)
		generations.GET("/:jid/stream", h.Stream.StreamJob) // SSE
	}

	// 项目维度
	projects := v1.Group("/projects")
	{
		projects.GET("/:pid/generations", h.Generation.History)
	}

	// 额度
	credits := v1.Group("/credits")
	{
		credits.POST("/estimate", h.Credit.Estimate)
		credits.GET("/:pid", h.Credit.Balance)
	}
}

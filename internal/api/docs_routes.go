package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"
)

//go:embed openapi.json
var openAPIDoc []byte

// apiDoc 手写的 OpenAPI 文档，注册给 swag 后 /swagger/doc.json 同样可用
type apiDoc struct{}

// ReadDoc 实现 swag.Swagger
func (apiDoc) ReadDoc() string {
	return string(openAPIDoc)
}

func init() {
	swag.Register(swag.Name, apiDoc{})
}

// registerDocsRoutes 提供 /openapi 与 Swagger UI，不需要认证
func registerDocsRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.json", serveOpenAPI)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.URL("/openapi"),
		ginSwagger.DocExpansion("none"),
	))
}

func serveOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", openAPIDoc)
}

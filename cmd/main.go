package main

import (
	"github.com/corray333/backend-labs/saga/internal/app"
	"github.com/corray333/backend-labs/saga/internal/config"
)

//	@title		Order Saga Worker API
//	@version	1.0
//	@BasePath	/api/v1
func main() {
	config.MustInit()
	app.MustNewApp().Run()
}

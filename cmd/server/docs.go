package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           BoostPanel API
// @version         0.1.0
// @description     Order status reconciliation and refund settlement for resold SMM fulfillment.
// @host            localhost:8080
// @BasePath        /
// @schemes         http

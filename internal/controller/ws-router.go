package controller

import (
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.SetValidator(c.validate.Struct)
	mux.SetErrorHandler(c.handleWSError)
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw(mux), c.rateLimitWSMw())

	wsrouter.Handle(mux, "alive", c.handleAlive)

	// room
	wsrouter.Handle(mux, "create-room", c.handleCreateRoom)
	wsrouter.Handle(mux, "join-room", c.handleJoinRoom)
	wsrouter.Handle(mux, "leave-room", c.handleLeaveRoom)

	// member
	wsrouter.Handle(mux, "promote-member", c.handlePromoteMember)

	// player
	wsrouter.Handle(mux, "control", c.handleControl)
	wsrouter.Handle(mux, "change-source", c.handleChangeSource)

	// relay
	wsrouter.Handle(mux, "chat", c.handleChat)
	wsrouter.Handle(mux, "upload-progress", c.handleUploadProgress)

	return mux
}

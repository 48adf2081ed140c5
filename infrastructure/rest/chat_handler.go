package rest

import (
	"chatto/domain"
	"chatto/errors"
	"chatto/services"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	log         *slog.Logger
	chatService services.IChatService
}

func NewChatHandler(log *slog.Logger, chatService services.IChatService) *ChatHandler {
	return &ChatHandler{log: log, chatService: chatService}
}

type createDirectRequest struct {
	ParticipantID domain.UserID `json:"participantId" binding:"required"`
}

type createGroupRequest struct {
	Name           string          `json:"name"`
	ParticipantIDs []domain.UserID `json:"participantIds"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type addMemberRequest struct {
	UserID domain.UserID `json:"userId" binding:"required"`
}

type messagesResponse struct {
	Messages []domain.MessageView `json:"messages"`
}

func (h *ChatHandler) List(c *gin.Context) {
	views, err := h.chatService.ListForUser(c.Request.Context(), MustIdentity(c).User.ID)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *ChatHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id", errors.ErrInvalidConversation)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	view, err := h.chatService.GetChat(c.Request.Context(), MustIdentity(c).User.ID, domain.ConversationID(id))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ChatHandler) CreateDirect(c *gin.Context) {
	var req createDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	view, err := h.chatService.CreateDirect(c.Request.Context(), MustIdentity(c).User.ID, req.ParticipantID)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	view, err := h.chatService.CreateGroup(c.Request.Context(), MustIdentity(c).User.ID, req.Name, req.ParticipantIDs)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ChatHandler) Messages(c *gin.Context) {
	id, err := pathID(c, "id", errors.ErrInvalidConversation)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	number, err := queryInt(c, "page", errors.ErrInvalidPagination)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	limit, err := queryInt(c, "limit", errors.ErrInvalidPagination)
	if err != nil {
		abort(c, h.log, err)
		return
	}

	messages, err := h.chatService.GetMessages(c.Request.Context(), MustIdentity(c).User.ID, domain.ConversationID(id), domain.Page{Number: number, Limit: limit})
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messagesResponse{Messages: messages})
}

func (h *ChatHandler) Send(c *gin.Context) {
	id, err := pathID(c, "id", errors.ErrInvalidConversation)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	message, err := h.chatService.SendMessage(c.Request.Context(), MustIdentity(c).User, domain.ConversationID(id), req.Content)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *ChatHandler) AddMember(c *gin.Context) {
	id, err := pathID(c, "chatId", errors.ErrInvalidConversation)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	view, err := h.chatService.AddMember(c.Request.Context(), MustIdentity(c).User.ID, domain.ConversationID(id), req.UserID)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ChatHandler) RemoveMember(c *gin.Context) {
	id, err := pathID(c, "chatId", errors.ErrInvalidConversation)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	user, err := pathID(c, "userId", errors.ErrInvalidUserID)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	view, err := h.chatService.RemoveMember(c.Request.Context(), MustIdentity(c).User.ID, domain.ConversationID(id), domain.UserID(user))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ChatHandler) SearchMessages(c *gin.Context) {
	messages, err := h.chatService.SearchMessages(c.Request.Context(), MustIdentity(c).User.ID, c.Query("query"))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) SearchUsers(c *gin.Context) {
	users, err := h.chatService.SearchUsers(c.Request.Context(), MustIdentity(c).User.ID, c.Query("query"))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

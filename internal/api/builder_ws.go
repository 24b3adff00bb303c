package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"certCanvas/internal/auth"
	"certCanvas/internal/builder"
	"certCanvas/internal/database"
	"certCanvas/internal/design"
)

// BuilderWSHandler 承载编辑器会话：鉴权、加载模板设计稿、
// 在单事件循环里驱动 builder.Session，并把渲染通知转发给客户端。
type BuilderWSHandler struct {
	db             *gorm.DB
	redisClient    redis.UniversalClient
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewBuilderWSHandler 构造编辑器 WebSocket 处理器。
func NewBuilderWSHandler(db *gorm.DB, redisClient redis.UniversalClient, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *BuilderWSHandler {
	h := &BuilderWSHandler{
		db:             db,
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// builderAuthMessage 是连接后的第一条消息：令牌 + 要编辑的模板。
type builderAuthMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	TemplateID uint   `json:"template_id"`
}

// builderEvent 是编辑器发来的一条事件。字段按事件类型取用，
// 未用到的字段保持零值。指针坐标是屏幕像素。
type builderEvent struct {
	Type      string             `json:"type"`
	ElementID string             `json:"element_id,omitempty"`
	X         float64            `json:"x,omitempty"`
	Y         float64            `json:"y,omitempty"`
	Tool      string             `json:"tool,omitempty"`
	Zoom      float64            `json:"zoom,omitempty"`
	FieldKey  string             `json:"field_key,omitempty"`
	Content   string             `json:"content,omitempty"`
	Style     *design.StylePatch  `json:"style,omitempty"`
	Canvas    *design.CanvasPatch `json:"canvas,omitempty"`
}

type builderReply struct {
	Type     string          `json:"type"`
	Message  string          `json:"message,omitempty"`
	Element  *wireElement    `json:"element,omitempty"`
	Selected string          `json:"selected,omitempty"`
	Tool     string          `json:"tool,omitempty"`
	Zoom     float64         `json:"zoom,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
}

// wireElement 在元素 JSON 外附带编辑器展示文本（动态字段用示例值）。
type wireElement struct {
	design.Element
	Preview string `json:"preview"`
}

type saveResult struct {
	err error
}

// HandleBuilder 升级连接，完成首消息鉴权并进入编辑事件循环。
func (h *BuilderWSHandler) HandleBuilder(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	baseLog := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, templateID, err := h.authenticate(conn)
	if err != nil {
		baseLog.Warn("builder websocket authentication failed", slog.Any("error", err))
		return
	}

	log := baseLog.With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("template_id", uint64(templateID)),
	)

	var tpl database.CertificateTemplate
	if err := h.db.WithContext(ctx).First(&tpl, templateID).Error; err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "template not found")
		log.Info("builder session rejected: template missing", slog.Any("error", err))
		return
	}

	doc, err := design.Unmarshal([]byte(tpl.Design))
	if err != nil {
		writeClose(conn, websocket.CloseInternalServerErr, "template design unreadable")
		log.Error("builder session rejected: design unreadable", slog.Any("error", err))
		return
	}

	session := builder.NewSession(doc)
	log.Info("builder session started")

	// 初始快照：前端拿它建立本地画布。
	if snapshot, err := design.Marshal(session.Document()); err == nil {
		h.send(conn, builderReply{Type: "ready", Document: snapshot, Zoom: session.Zoom(), Tool: string(session.Tool())})
	}

	events := make(chan builderEvent, 16)
	readErr := make(chan error, 1)
	go h.readEvents(ctx, conn, events, readErr)

	// 渲染完成通知走 Redis 发布订阅，与事件循环共用一个 select。
	channel := fmt.Sprintf("user_notify:%d", userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()
	notify := pubsub.Channel()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	saveDone := make(chan saveResult, 1)
	saving := false

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			if err != nil {
				log.Info("builder session closed", slog.Any("error", err))
			}
			return

		case ev := <-events:
			if ev.Type == "save" {
				if saving {
					h.send(conn, builderReply{Type: "error", Message: "save already in progress"})
					continue
				}
				// 快照在事件循环里同步序列化，之后的编辑不会混进这次保存。
				snapshot, err := design.Marshal(session.Document())
				if err != nil {
					h.send(conn, builderReply{Type: "error", Message: err.Error()})
					continue
				}
				saving = true
				go func() {
					err := h.db.WithContext(ctx).
						Model(&database.CertificateTemplate{}).
						Where("id = ?", tpl.ID).
						Update("design", datatypes.JSON(snapshot)).Error
					saveDone <- saveResult{err: err}
				}()
				continue
			}
			h.applyEvent(conn, session, ev)

		case result := <-saveDone:
			saving = false
			if result.err != nil {
				log.Error("builder save failed", slog.Any("error", result.err))
				h.send(conn, builderReply{Type: "save_failed", Message: "failed to persist design"})
			} else {
				log.Info("builder design saved")
				h.send(conn, builderReply{Type: "saved"})
			}

		case msg, ok := <-notify:
			if !ok {
				log.Info("builder notify channel closed")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Info("builder notify forward failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				log.Info("builder ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

// authenticate 读取并校验首条 auth 消息。
func (h *BuilderWSHandler) authenticate(conn *websocket.Conn) (userID, templateID uint, err error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg builderAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" || msg.TemplateID == 0 {
		writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, 0, fmt.Errorf("invalid auth message")
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != "access" {
		writeClose(conn, websocket.ClosePolicyViolation, "access token required")
		return 0, 0, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}
	if claims.MustChangePassword {
		writeClose(conn, websocket.ClosePolicyViolation, "password change required")
		return 0, 0, fmt.Errorf("password change required")
	}

	return claims.UserID, msg.TemplateID, nil
}

// readEvents 把连接上的 JSON 消息解码后送进事件循环。
func (h *BuilderWSHandler) readEvents(ctx context.Context, conn *websocket.Conn, events chan<- builderEvent, readErr chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			readErr <- fmt.Errorf("read message: %w", err)
			return
		}

		var ev builderEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			// 坏消息跳过，连接保留。
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// applyEvent 把一条编辑事件作用到会话上。
// 指针事件不回包：前端本地已经画了，回显只会抖。
func (h *BuilderWSHandler) applyEvent(conn *websocket.Conn, session *builder.Session, ev builderEvent) {
	pointer := builder.Point{X: ev.X, Y: ev.Y}

	switch ev.Type {
	case "pointer_down":
		session.PointerDown(pointer, ev.ElementID)

	case "pointer_move":
		session.PointerMove(pointer)

	case "pointer_up":
		session.PointerUp()

	case "canvas_click":
		if el, ok := session.CanvasClick(pointer); ok {
			h.send(conn, builderReply{
				Type:     "element_added",
				Element:  &wireElement{Element: el, Preview: session.PreviewContent(el)},
				Selected: session.Selected(),
				Tool:     string(session.Tool()),
			})
		} else {
			h.send(conn, builderReply{Type: "selection", Selected: session.Selected()})
		}

	case "add_dynamic_field":
		if el, ok := session.AddDynamicField(design.FieldKey(ev.FieldKey)); ok {
			h.send(conn, builderReply{
				Type:     "element_added",
				Element:  &wireElement{Element: el, Preview: session.PreviewContent(el)},
				Selected: session.Selected(),
				Tool:     string(session.Tool()),
			})
		} else {
			h.send(conn, builderReply{Type: "error", Message: fmt.Sprintf("unknown field key %q", ev.FieldKey)})
		}

	case "select":
		session.Select(ev.ElementID)
		h.send(conn, builderReply{Type: "selection", Selected: session.Selected(), Tool: string(session.Tool())})

	case "set_tool":
		session.SetTool(builder.Tool(ev.Tool))
		h.send(conn, builderReply{Type: "tool", Tool: string(session.Tool())})

	case "set_zoom":
		session.SetZoom(ev.Zoom)
		h.send(conn, builderReply{Type: "zoom", Zoom: session.Zoom()})

	case "delete_selection":
		session.DeleteSelected()
		h.send(conn, builderReply{Type: "selection", Selected: session.Selected()})

	case "update_style":
		if ev.Style != nil {
			session.Store().UpdateStyle(ev.ElementID, *ev.Style)
		}

	case "update_content":
		if err := session.Store().UpdateContent(ev.ElementID, ev.Content); err != nil {
			h.send(conn, builderReply{Type: "error", Message: err.Error()})
		}

	case "set_canvas":
		if ev.Canvas == nil {
			return
		}
		if err := session.Store().SetCanvas(*ev.Canvas); err != nil {
			h.send(conn, builderReply{Type: "error", Message: err.Error()})
		}

	default:
		h.send(conn, builderReply{Type: "error", Message: fmt.Sprintf("unknown event %q", ev.Type)})
	}
}

func (h *BuilderWSHandler) send(conn *websocket.Conn, reply builderReply) {
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.logger.Debug("builder reply write failed", slog.Any("error", err))
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

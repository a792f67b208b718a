package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwhan/tubedigest/app/database"
	"github.com/jwhan/tubedigest/app/secrets"
	"github.com/jwhan/tubedigest/app/youtube"
)

const pageSize = 10

type ChannelResolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

type ChannelFeed interface {
	FetchEntries(ctx context.Context, channelID string) (string, []youtube.Entry, error)
}

type ChannelScanner interface {
	Run(ctx context.Context, userID int64, reset bool) (int, error)
}

type SummaryGenerator interface {
	Run(ctx context.Context, userID int64, videoIDs []string) (int, int, error)
}

type Handler struct {
	userRepo    database.UserRepository
	channelRepo database.ChannelRepository
	scanRepo    database.ScanRepository
	summaryRepo database.SummaryRepository
	resolver    ChannelResolver
	feed        ChannelFeed
	scanner     ChannelScanner
	generator   SummaryGenerator
	cipher      *secrets.Cipher
	version     string
}

func NewHandler(userRepo database.UserRepository, channelRepo database.ChannelRepository,
	scanRepo database.ScanRepository, summaryRepo database.SummaryRepository,
	resolver ChannelResolver, feed ChannelFeed, scanner ChannelScanner, generator SummaryGenerator,
	cipher *secrets.Cipher, version string) *Handler {
	return &Handler{
		userRepo:    userRepo,
		channelRepo: channelRepo,
		scanRepo:    scanRepo,
		summaryRepo: summaryRepo,
		resolver:    resolver,
		feed:        feed,
		scanner:     scanner,
		generator:   generator,
		cipher:      cipher,
		version:     version,
	}
}

func redirectWithMsg(c *gin.Context, path, msg string) {
	c.Redirect(http.StatusFound, path+"?msg="+url.QueryEscape(msg))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) ShowLogin(c *gin.Context) {
	if _, ok := currentUserID(c); ok {
		c.Redirect(http.StatusFound, "/")
		return
	}

	token, err := csrfToken(c)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"CSRFToken": token,
		"Msg":       c.Query("msg"),
	})
}

func (h *Handler) Login(c *gin.Context) {
	if !checkCSRF(c) {
		redirectWithMsg(c, "/login", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	user, err := h.userRepo.GetUserByEmail(email)
	if err != nil {
		slog.Error("Database error", "operation", "get_user", "error", err)
		redirectWithMsg(c, "/login", "로그인 처리 중 오류가 발생했습니다.")
		return
	}

	if user == nil || !secrets.CheckPassword(password, user.PasswordHash) {
		redirectWithMsg(c, "/login", "이메일 또는 비밀번호가 올바르지 않습니다.")
		return
	}

	if err := setSessionUser(c, user.ID); err != nil {
		slog.Error("Failed to save session", "error", err)
		redirectWithMsg(c, "/login", "로그인 처리 중 오류가 발생했습니다.")
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) ShowRegister(c *gin.Context) {
	if _, ok := currentUserID(c); ok {
		c.Redirect(http.StatusFound, "/")
		return
	}

	token, err := csrfToken(c)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "register.html", gin.H{
		"CSRFToken": token,
		"Msg":       c.Query("msg"),
	})
}

func (h *Handler) Register(c *gin.Context) {
	if !checkCSRF(c) {
		redirectWithMsg(c, "/register", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	recipient := strings.TrimSpace(c.PostForm("recipient_email"))

	if email == "" || password == "" {
		redirectWithMsg(c, "/register", "이메일과 비밀번호를 입력해주세요.")
		return
	}

	// Summaries go to the account address unless a separate inbox is given.
	if recipient == "" {
		recipient = email
	}

	hash, err := secrets.HashPassword(password)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		redirectWithMsg(c, "/register", "가입 처리 중 오류가 발생했습니다.")
		return
	}

	userID, err := h.userRepo.CreateUser(email, hash, recipient)
	if err == database.ErrDuplicateEmail {
		redirectWithMsg(c, "/register", "이미 등록된 이메일입니다.")
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "create_user", "error", err)
		redirectWithMsg(c, "/register", "가입 처리 중 오류가 발생했습니다.")
		return
	}

	if err := setSessionUser(c, userID); err != nil {
		slog.Error("Failed to save session", "error", err)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) Logout(c *gin.Context) {
	if err := clearSession(c); err != nil {
		slog.Error("Failed to clear session", "error", err)
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) Dashboard(c *gin.Context) {
	userID, _ := currentUserID(c)

	token, err := csrfToken(c)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	channels, err := h.channelRepo.ListChannels(userID)
	if err != nil {
		slog.Error("Database error", "operation", "list_channels", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	scannedPage := pageParam(c, "sp")
	scanned, err := h.scanRepo.ListScannedPage(userID, pageSize, (scannedPage-1)*pageSize)
	if err != nil {
		slog.Error("Database error", "operation", "list_scanned", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	scannedCount, err := h.scanRepo.CountScanned(userID)
	if err != nil {
		slog.Error("Database error", "operation", "count_scanned", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	generatedPage := pageParam(c, "gp")
	generated, err := h.summaryRepo.ListGeneratedPage(userID, pageSize, (generatedPage-1)*pageSize)
	if err != nil {
		slog.Error("Database error", "operation", "list_generated", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	generatedCount, err := h.summaryRepo.CountGenerated(userID)
	if err != nil {
		slog.Error("Database error", "operation", "count_generated", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"CSRFToken":      token,
		"Msg":            c.Query("msg"),
		"Channels":       channels,
		"Scanned":        scanned,
		"ScannedPage":    scannedPage,
		"ScannedPages":   totalPages(scannedCount),
		"ScannedCount":   scannedCount,
		"Generated":      generated,
		"GeneratedPage":  generatedPage,
		"GeneratedPages": totalPages(generatedCount),
		"GeneratedCount": generatedCount,
	})
}

func (h *Handler) AddChannel(c *gin.Context) {
	userID, _ := currentUserID(c)

	if !checkCSRF(c) {
		redirectWithMsg(c, "/", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	input := strings.TrimSpace(c.PostForm("channel"))
	recipient := strings.TrimSpace(c.PostForm("recipient_email"))

	if input == "" {
		redirectWithMsg(c, "/", "채널 주소를 입력해주세요.")
		return
	}

	channelID, err := h.resolver.Resolve(c.Request.Context(), input)
	if err != nil {
		slog.Warn("Channel resolution failed", "input", input, "error", err)
		redirectWithMsg(c, "/", "채널을 찾을 수 없습니다. 주소를 확인해주세요.")
		return
	}

	// Fetching the feed up front both verifies the channel is reachable and
	// snapshots its title for the dashboard.
	title, _, err := h.feed.FetchEntries(c.Request.Context(), channelID)
	if err != nil {
		slog.Warn("Channel feed fetch failed", "channel", channelID, "error", err)
		redirectWithMsg(c, "/", "채널 피드를 가져올 수 없습니다. 잠시 후 다시 시도해주세요.")
		return
	}

	if err := h.channelRepo.UpsertChannel(userID, channelID, input, title, recipient); err != nil {
		slog.Error("Database error", "operation", "upsert_channel", "error", err)
		redirectWithMsg(c, "/", "채널 등록 중 오류가 발생했습니다.")
		return
	}

	redirectWithMsg(c, "/", "채널이 등록되었습니다.")
}

func (h *Handler) DeleteChannel(c *gin.Context) {
	userID, _ := currentUserID(c)

	if !checkCSRF(c) {
		redirectWithMsg(c, "/", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	channelPK, err := strconv.ParseInt(c.PostForm("id"), 10, 64)
	if err != nil {
		redirectWithMsg(c, "/", "잘못된 요청입니다.")
		return
	}

	if err := h.channelRepo.DeleteChannel(userID, channelPK); err != nil {
		slog.Error("Database error", "operation", "delete_channel", "error", err)
		redirectWithMsg(c, "/", "채널 삭제 중 오류가 발생했습니다.")
		return
	}

	redirectWithMsg(c, "/", "채널이 삭제되었습니다.")
}

func (h *Handler) DeleteGenerated(c *gin.Context) {
	userID, _ := currentUserID(c)

	if !checkCSRF(c) {
		redirectWithMsg(c, "/", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	videoID := c.PostForm("video_id")
	if videoID == "" {
		redirectWithMsg(c, "/", "잘못된 요청입니다.")
		return
	}

	if err := h.summaryRepo.DeleteGeneratedItem(userID, videoID); err != nil {
		slog.Error("Database error", "operation", "delete_generated", "error", err)
		redirectWithMsg(c, "/", "요약 삭제 중 오류가 발생했습니다.")
		return
	}

	redirectWithMsg(c, "/", "요약이 삭제되었습니다.")
}

func (h *Handler) RunNow(c *gin.Context) {
	userID, _ := currentUserID(c)

	if !checkCSRF(c) {
		redirectWithMsg(c, "/", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	count, err := h.scanner.Run(c.Request.Context(), userID, true)
	if err != nil {
		slog.Error("Scan failed", "user", userID, "error", err)
		redirectWithMsg(c, "/", "채널 스캔 중 오류가 발생했습니다.")
		return
	}

	redirectWithMsg(c, "/", "스캔 완료: "+strconv.Itoa(count)+"개의 영상을 확인했습니다.")
}

func (h *Handler) GenerateSummaries(c *gin.Context) {
	userID, _ := currentUserID(c)

	if !checkCSRF(c) {
		redirectWithMsg(c, "/", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil || user == nil {
		slog.Error("Database error", "operation", "get_user", "error", err)
		redirectWithMsg(c, "/", "요약 생성 중 오류가 발생했습니다.")
		return
	}
	if user.OpenAIAPIKey == "" {
		redirectWithMsg(c, "/settings", "설정에서 OpenAI API 키를 먼저 등록해주세요.")
		return
	}

	videoIDs := c.PostFormArray("video_ids")
	if len(videoIDs) == 0 {
		redirectWithMsg(c, "/", "요약할 영상을 선택해주세요.")
		return
	}

	// Generation talks to external APIs and can take minutes, so it runs
	// detached from the request.
	go func() {
		generated, failed, err := h.generator.Run(context.Background(), userID, videoIDs)
		if err != nil {
			slog.Error("Summary generation failed", "user", userID, "error", err)
			return
		}
		slog.Info("Summary generation completed", "user", userID, "generated", generated, "failed", failed)
	}()

	redirectWithMsg(c, "/", "요약 생성을 시작했습니다. 잠시 후 새로고침해주세요.")
}

func (h *Handler) ShowSettings(c *gin.Context) {
	userID, _ := currentUserID(c)

	token, err := csrfToken(c)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil || user == nil {
		slog.Error("Database error", "operation", "get_user", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "settings.html", gin.H{
		"CSRFToken": token,
		"Msg":       c.Query("msg"),
		"HasAPIKey": user.OpenAIAPIKey != "",
		"Model":     user.OpenAIModel,
		"Prompt":    user.SummaryPrompt,
	})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	userID, _ := currentUserID(c)

	if !checkCSRF(c) {
		redirectWithMsg(c, "/settings", "세션이 만료되었습니다. 다시 시도해주세요.")
		return
	}

	apiKey := strings.TrimSpace(c.PostForm("api_key"))
	model := strings.TrimSpace(c.PostForm("model"))
	prompt := strings.TrimSpace(c.PostForm("prompt"))

	// A blank key keeps the stored one; only a submitted key is re-encrypted.
	stored := ""
	if apiKey != "" {
		stored = apiKey
		if h.cipher != nil {
			encrypted, err := h.cipher.Encrypt(apiKey)
			if err != nil {
				slog.Error("Failed to encrypt API key", "error", err)
				redirectWithMsg(c, "/settings", "설정 저장 중 오류가 발생했습니다.")
				return
			}
			stored = encrypted
		}
	}

	if err := h.userRepo.UpdateSettings(userID, stored, model, prompt); err != nil {
		slog.Error("Database error", "operation", "update_settings", "error", err)
		redirectWithMsg(c, "/settings", "설정 저장 중 오류가 발생했습니다.")
		return
	}

	redirectWithMsg(c, "/settings", "설정이 저장되었습니다.")
}

func pageParam(c *gin.Context, name string) int {
	page, err := strconv.Atoi(c.Query(name))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func totalPages(count int) int {
	if count == 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

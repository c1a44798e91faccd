package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Snoopiam/mqt/internal/extract"
	"github.com/Snoopiam/mqt/internal/imagecodec"
	"github.com/Snoopiam/mqt/internal/mediagroup"
	"github.com/Snoopiam/mqt/internal/pipeline"
	"github.com/Snoopiam/mqt/internal/session"
	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/telegram"
	"github.com/Snoopiam/mqt/internal/tier"
	"github.com/Snoopiam/mqt/internal/vision"
)

type Options struct {
	Telegram     *telegram.Client
	Orchestrator *pipeline.Orchestrator
	Comparator   *pipeline.Comparator
	Extractor    *extract.Extractor
	Styles       *style.Store
	Sessions     *session.Store
	Logger       *slog.Logger
	MaxImageSize int64
}

type Handler struct {
	tg           *telegram.Client
	orch         *pipeline.Orchestrator
	comp         *pipeline.Comparator
	extractor    *extract.Extractor
	styles       *style.Store
	sessions     *session.Store
	logger       *slog.Logger
	aggregator   *mediagroup.Aggregator
	maxImageSize int64
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxImageSize := opts.MaxImageSize
	if maxImageSize <= 0 {
		maxImageSize = 10 * 1024 * 1024
	}

	return &Handler{
		tg:           opts.Telegram,
		orch:         opts.Orchestrator,
		comp:         opts.Comparator,
		extractor:    opts.Extractor,
		styles:       opts.Styles,
		sessions:     opts.Sessions,
		logger:       logger,
		maxImageSize: maxImageSize,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID
	username := msg.From.UserName

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, username, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, username, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, userID, username, msg.Text)
	}

	return nil
}

// HandleAlbum renders an album of [style reference, floor plan] as one
// request: extract the DNA from the first photo, render the second with
// it.
func (h *Handler) HandleAlbum(ctx context.Context, album mediagroup.Album) {
	chatID := album.ChatID

	if !album.Complete() {
		_ = h.tg.SendText(chatID, "⚠️ Send two photos together: a style reference first, then the floor plan.")
		return
	}

	h.tg.SendTyping(chatID)

	refData, refMime, planData, planMime, err := h.downloadPair(ctx, album.Reference(), album.FloorPlan())
	if err != nil {
		h.logger.Error("album download failed", "err", err)
		_ = h.tg.SendText(chatID, "❌ Could not download the photos. Please try again.")
		return
	}

	refImage := vision.ImageInput{Data: refData, MimeType: refMime}
	descriptor, err := h.extractor.Extract(ctx, refImage, "", false)
	if err != nil {
		h.logger.Error("album extraction failed", "err", err)
		_ = h.tg.SendText(chatID, "❌ Style extraction failed. Try a clearer reference image.")
		return
	}

	if _, err := h.styles.Save(descriptor); err != nil {
		h.logger.Error("style save failed", "err", err, "style_id", descriptor.ID)
	}

	h.sessions.Update(album.UserID, album.Username, func(s *session.Session) {
		s.StyleID = descriptor.ID
		s.ReferenceImage = refData
		s.ReferenceMime = refMime
		s.FloorPlanFileID = album.FloorPlan()
		s.RefineAttempts = 0
		s.LastComparison = nil
		s.Mode = session.ModeIdle
	})

	_ = h.tg.SendText(chatID, fmt.Sprintf("🧬 Extracted style: %s\n%s\n\nRendering your floor plan...", descriptor.Name, descriptor.Description))

	sess := h.sessions.Snapshot(album.UserID, album.Username)
	h.runRender(ctx, chatID, album.UserID, album.Username, sess,
		vision.ImageInput{Data: planData, MimeType: planMime}, strings.TrimSpace(album.Caption), nil)
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"🏠 MQT Floor Plan Studio\n\n"+
				"Send me a floor plan photo and I will render it as a styled 3D visualization.\n\n"+
				"Commands:\n"+
				"/render - Pick a style and render a floor plan\n"+
				"/styles - Browse the style library\n"+
				"/extract - Extract a Style DNA from a reference image\n"+
				"/tier - Choose a quality tier\n"+
				"/download - Get the last render as a full-quality file\n"+
				"/clear - Reset your session\n"+
				"/help - Help",
		)
	case "help":
		return h.tg.SendText(chatID,
			"🏠 Help\n\n"+
				"Send a floor plan photo — I render it with your selected style.\n"+
				"Send TWO photos as an album (style reference + floor plan) — I extract the style and render in one go.\n"+
				"/render - guided style and tier selection\n"+
				"/extract - turn any interior photo into a reusable Style DNA\n"+
				"/styles - browse saved styles\n"+
				"/tier - switch quality tier\n"+
				"/download - get the last render as a full-quality file (optionally /download jpeg)\n"+
				"/clear - reset everything.",
		)
	case "clear":
		h.sessions.Clear(userID)
		return h.tg.SendText(chatID, "✅ Session cleared.")
	case "styles":
		return h.sendCategoryKeyboard(chatID, userID)
	case "render":
		h.sessions.Update(userID, username, func(s *session.Session) {
			s.Mode = session.ModeAwaitStyle
		})
		return h.sendCategoryKeyboard(chatID, userID)
	case "extract":
		h.sessions.Update(userID, username, func(s *session.Session) {
			s.Mode = session.ModeAwaitReference
		})
		return h.tg.SendText(chatID, "📸 Send a reference photo of the style you want to capture.")
	case "tier":
		return h.sendTierKeyboard(chatID, userID)
	case "download":
		return h.handleDownload(chatID, userID, username, strings.ToLower(strings.TrimSpace(msg.CommandArguments())))
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) handleText(ctx context.Context, chatID int64, userID int64, username string, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sess := h.sessions.Snapshot(userID, username)
	if sess.FloorPlanFileID != "" {
		// A bare text after a render re-runs the plan with the text as
		// the user request.
		h.tg.SendTyping(chatID)
		planData, planMime, err := h.tg.DownloadFile(ctx, sess.FloorPlanFileID)
		if err != nil {
			h.logger.Error("floor plan re-download failed", "err", err)
			return h.tg.SendText(chatID, "❌ Could not reload your floor plan. Send it again.")
		}
		h.runRender(ctx, chatID, userID, username, sess,
			vision.ImageInput{Data: planData, MimeType: planMime}, text, nil)
		return nil
	}

	return h.tg.SendText(chatID, "Send a floor plan photo to get started, or use /render.")
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]
	fileID := photo.FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			Username:     username,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		})
		return nil
	}

	sess := h.sessions.Snapshot(userID, username)
	if sess.Mode == session.ModeAwaitReference {
		return h.handleReferencePhoto(ctx, chatID, userID, username, fileID)
	}

	// Any other photo is a floor plan.
	h.sessions.Update(userID, username, func(s *session.Session) {
		s.FloorPlanFileID = fileID
		s.RefineAttempts = 0
		s.LastComparison = nil
		s.Mode = session.ModeIdle
	})

	h.tg.SendTyping(chatID)
	planData, planMime, err := h.tg.DownloadFile(ctx, fileID)
	if err != nil {
		h.logger.Error("floor plan download failed", "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please try again.")
	}
	if int64(len(planData)) > h.maxImageSize {
		return h.tg.SendText(chatID, "❌ Image too large. Please send an image under 10 MB.")
	}

	sess = h.sessions.Snapshot(userID, username)
	h.runRender(ctx, chatID, userID, username, sess,
		vision.ImageInput{Data: planData, MimeType: planMime}, strings.TrimSpace(msg.Caption), nil)
	return nil
}

func (h *Handler) handleReferencePhoto(ctx context.Context, chatID int64, userID int64, username, fileID string) error {
	h.tg.SendTyping(chatID)

	data, mimeType, err := h.tg.DownloadFile(ctx, fileID)
	if err != nil {
		h.logger.Error("reference download failed", "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please try again.")
	}
	if int64(len(data)) > h.maxImageSize {
		return h.tg.SendText(chatID, "❌ Image too large. Please send an image under 10 MB.")
	}

	descriptor, err := h.extractor.Extract(ctx, vision.ImageInput{Data: data, MimeType: mimeType}, "", false)
	if err != nil {
		h.logger.Error("extraction failed", "err", err)
		return h.tg.SendText(chatID, "❌ Style extraction failed. Try a clearer, well-lit reference image.")
	}

	if _, err := h.styles.Save(descriptor); err != nil {
		h.logger.Error("style save failed", "err", err, "style_id", descriptor.ID)
	}

	h.sessions.Update(userID, username, func(s *session.Session) {
		s.StyleID = descriptor.ID
		s.ReferenceImage = data
		s.ReferenceMime = mimeType
		s.Mode = session.ModeIdle
	})

	summary := fmt.Sprintf("🧬 Style DNA extracted!\n\nName: %s\n%s\n\nLighting: %s\nModifiers: %s\n\nIt is now your active style. Send a floor plan photo to render with it.",
		descriptor.Name, descriptor.Description, descriptor.LightingSetup, strings.Join(descriptor.StyleModifiers, ", "))
	return h.tg.SendText(chatID, summary)
}

// handleDownload re-sends the last render as an uncompressed document.
// Telegram recompresses photos; the document path keeps full quality.
func (h *Handler) handleDownload(chatID, userID int64, username, format string) error {
	sess := h.sessions.Snapshot(userID, username)
	if len(sess.LastImage) == 0 {
		return h.tg.SendText(chatID, "Nothing to download yet. Render a floor plan first.")
	}
	if format == "" {
		format = "png"
	}

	out, _, err := imagecodec.ReEncode(sess.LastImage, format)
	if err != nil {
		return h.tg.SendText(chatID, "❌ Could not convert the image. Try /download png or /download jpeg.")
	}
	return h.tg.SendDocument(chatID, out, "render."+format, "")
}

func (h *Handler) downloadPair(ctx context.Context, refID, planID string) (refData []byte, refMime string, planData []byte, planMime string, err error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var derr error
		refData, refMime, derr = h.tg.DownloadFile(egCtx, refID)
		return derr
	})
	eg.Go(func() error {
		var derr error
		planData, planMime, derr = h.tg.DownloadFile(egCtx, planID)
		return derr
	})
	if werr := eg.Wait(); werr != nil {
		return nil, "", nil, "", werr
	}
	if int64(len(refData)) > h.maxImageSize || int64(len(planData)) > h.maxImageSize {
		return nil, "", nil, "", errors.New("image exceeds size limit")
	}
	return refData, refMime, planData, planMime, nil
}

func renderErrorMessage(err error, t tier.Config) string {
	switch {
	case errors.Is(err, pipeline.ErrRateLimited):
		return fmt.Sprintf("⏳ Daily limit reached for the %s tier (%d images/day). Try /tier to switch, or come back tomorrow.", t.Tier, t.DailyLimit)
	case errors.Is(err, pipeline.ErrAnalysisFailed):
		return "❌ Could not read the floor plan structure. Send a clearer, higher-contrast plan image."
	case errors.Is(err, pipeline.ErrGenerationFailed):
		return "❌ Image generation failed. Please try again, or switch tiers with /tier."
	default:
		return "❌ Something went wrong. Please try again."
	}
}

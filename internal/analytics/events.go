package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/model"
)

// Display names stored with typed events.
const (
	NamePageView       = "Page View"
	NameProductView    = "Product View"
	NameAddToCart      = "Add to Cart"
	NamePurchase       = "Purchase"
	NameFunnelStep     = "Funnel Step"
	NameLiveStreamView = "Live Stream View"
	NameMessageSent    = "Message Sent"
	NameSocialShare    = "Social Share"
)

// DefaultFunnelAction is recorded when a funnel step has no explicit action.
const DefaultFunnelAction = "view"

// PageView builds a page_view submission.
func PageView(page string) TrackInput {
	return TrackInput{
		Type:       model.EventPageView,
		Name:       NamePageView,
		Properties: model.Properties{"page": page},
	}
}

// ProductView builds a product_view submission.
func ProductView(productID string) TrackInput {
	return TrackInput{
		Type:       model.EventProductView,
		Name:       NameProductView,
		Properties: model.Properties{"product_id": productID},
	}
}

// AddToCart builds an add_to_cart submission. quantity < 1 is recorded as 1.
func AddToCart(productID string, quantity int, value decimal.Decimal) TrackInput {
	if quantity < 1 {
		quantity = 1
	}
	return TrackInput{
		Type:       model.EventAddToCart,
		Name:       NameAddToCart,
		Properties: model.Properties{"product_id": productID, "quantity": quantity},
		Value:      &value,
	}
}

// Purchase builds a purchase submission. items may be nil.
func Purchase(orderID string, value decimal.Decimal, items []any) TrackInput {
	if items == nil {
		items = []any{}
	}
	return TrackInput{
		Type:       model.EventPurchase,
		Name:       NamePurchase,
		Properties: model.Properties{"order_id": orderID, "items": items},
		Value:      &value,
	}
}

// FunnelStep builds a funnel_step submission.
func FunnelStep(funnelID, stepID, action string) TrackInput {
	if action == "" {
		action = DefaultFunnelAction
	}
	return TrackInput{
		Type:       model.EventFunnelStep,
		Name:       NameFunnelStep,
		Properties: model.Properties{"funnel_id": funnelID, "step_id": stepID, "action": action},
	}
}

// LiveStreamView builds a live_stream_view submission.
func LiveStreamView(streamID string) TrackInput {
	return TrackInput{
		Type:       model.EventLiveStreamView,
		Name:       NameLiveStreamView,
		Properties: model.Properties{"stream_id": streamID},
	}
}

// MessageSent builds a message_sent submission.
func MessageSent(conversationID string) TrackInput {
	props := model.Properties{}
	if conversationID != "" {
		props["conversation_id"] = conversationID
	}
	return TrackInput{Type: model.EventMessageSent, Name: NameMessageSent, Properties: props}
}

// SocialShare builds a social_share submission.
func SocialShare(platform, url string) TrackInput {
	props := model.Properties{}
	if platform != "" {
		props["platform"] = platform
	}
	if url != "" {
		props["url"] = url
	}
	return TrackInput{Type: model.EventSocialShare, Name: NameSocialShare, Properties: props}
}

// TrackPageView records a page view.
func (t *Tracker) TrackPageView(ctx context.Context, page, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, PageView(page).For(userID, rc))
}

// TrackProductView records a product view.
func (t *Tracker) TrackProductView(ctx context.Context, productID, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, ProductView(productID).For(userID, rc))
}

// TrackAddToCart records an add-to-cart.
func (t *Tracker) TrackAddToCart(ctx context.Context, productID string, quantity int, value decimal.Decimal, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, AddToCart(productID, quantity, value).For(userID, rc))
}

// TrackPurchase records a completed order.
func (t *Tracker) TrackPurchase(ctx context.Context, orderID string, value decimal.Decimal, items []any, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, Purchase(orderID, value, items).For(userID, rc))
}

// TrackFunnelStep records progress through a funnel.
func (t *Tracker) TrackFunnelStep(ctx context.Context, funnelID, stepID, action, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, FunnelStep(funnelID, stepID, action).For(userID, rc))
}

// TrackLiveStreamView records a live stream viewer.
func (t *Tracker) TrackLiveStreamView(ctx context.Context, streamID, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, LiveStreamView(streamID).For(userID, rc))
}

// TrackMessageSent records a chat message.
func (t *Tracker) TrackMessageSent(ctx context.Context, conversationID, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, MessageSent(conversationID).For(userID, rc))
}

// TrackSocialShare records a share to an external platform.
func (t *Tracker) TrackSocialShare(ctx context.Context, platform, url, userID string, rc *model.RequestContext) (*model.EventRecord, error) {
	return t.Track(ctx, SocialShare(platform, url).For(userID, rc))
}

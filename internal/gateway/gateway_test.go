package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/auth"
	"github.com/seamarket/fishbid/internal/broadcast"
	"github.com/seamarket/fishbid/internal/events"
	"github.com/seamarket/fishbid/internal/models"
	"github.com/seamarket/fishbid/internal/sequencer"
)

// fakeRooms records membership changes and room publishes.
type fakeRooms struct {
	joins     []string
	leaves    []string
	leaveAlls int
	published []*events.Event
}

func (r *fakeRooms) Join(ctx context.Context, auctionID string, sub broadcast.Subscriber) {
	r.joins = append(r.joins, auctionID)
}

func (r *fakeRooms) Leave(ctx context.Context, auctionID string, sub broadcast.Subscriber) {
	r.leaves = append(r.leaves, auctionID)
}

func (r *fakeRooms) LeaveAll(ctx context.Context, sub broadcast.Subscriber) {
	r.leaveAlls++
}

func (r *fakeRooms) Publish(auctionID string, ev *events.Event) {
	r.published = append(r.published, ev)
}

// fakeBids returns a canned outcome or error.
type fakeBids struct {
	outcome *sequencer.BidOutcome
	err     error

	auctionID uuid.UUID
	bidderID  uuid.UUID
	amount    decimal.Decimal
}

func (b *fakeBids) SubmitBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (*sequencer.BidOutcome, error) {
	b.auctionID = auctionID
	b.bidderID = bidderID
	b.amount = amount
	if b.err != nil {
		return nil, b.err
	}
	return b.outcome, nil
}

type fakeAuctions struct {
	auctions map[uuid.UUID]*models.Auction
}

func (a *fakeAuctions) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	auc, ok := a.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, auction.ErrNotFound)
	}
	return auc, nil
}

type gatewayFixture struct {
	handler  *Handler
	rooms    *fakeRooms
	bids     *fakeBids
	auctions *fakeAuctions
	session  *Session
	auction  *models.Auction
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	auc := &models.Auction{
		ID:              uuid.New(),
		FishID:          uuid.New(),
		SellerID:        uuid.New(),
		StartingPrice:   decimal.NewFromInt(100),
		CurrentPrice:    decimal.NewFromInt(100),
		MinBidIncrement: decimal.NewFromInt(10),
		StartTime:       now.Add(-30 * time.Minute),
		EndTime:         now.Add(30 * time.Minute),
		Status:          models.AuctionStatusActive,
		UpdatedAt:       now,
	}

	rooms := &fakeRooms{}
	bids := &fakeBids{}
	auctions := &fakeAuctions{auctions: map[uuid.UUID]*models.Auction{auc.ID: auc}}
	handler := NewHandler(auth.NewVerifier([]byte("test-secret")), auctions, bids, rooms, DefaultConfig())

	identity := auth.Identity{UserID: uuid.New(), Name: "bidder", Role: models.UserRoleUser}
	session := newSession(handler, identity, nil)

	return &gatewayFixture{
		handler:  handler,
		rooms:    rooms,
		bids:     bids,
		auctions: auctions,
		session:  session,
		auction:  auc,
	}
}

// nextEvent pops the next event queued on the session's connection.
func nextEvent(t *testing.T, s *Session) *events.Event {
	t.Helper()
	select {
	case data := <-s.send:
		var ev events.Event
		assert.NoError(t, json.Unmarshal(data, &ev))
		return &ev
	default:
		t.Fatal("no event queued on session")
		return nil
	}
}

func noEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.send:
		t.Fatalf("unexpected event queued on session: %s", data)
	default:
	}
}

func intentMessage(t *testing.T, intent Intent) []byte {
	t.Helper()
	data, err := json.Marshal(intent)
	assert.NoError(t, err)
	return data
}

func TestDispatch_MalformedIntent(t *testing.T) {
	f := newGatewayFixture(t)

	f.handler.dispatch(context.Background(), f.session, []byte("{not json"))

	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeError, ev.Type)
	check.Equal(t, 0, len(f.rooms.published))
}

func TestDispatch_InvalidAuctionID(t *testing.T) {
	f := newGatewayFixture(t)

	f.handler.dispatch(context.Background(), f.session, []byte(`{"type":"join","auction_id":"fish-42"}`))

	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeError, ev.Type)
	var payload events.ErrorPayload
	assert.NoError(t, json.Unmarshal(ev.Data, &payload))
	check.Equal(t, "bad_request", payload.Code)
}

func TestDispatch_UnknownIntentType(t *testing.T) {
	f := newGatewayFixture(t)

	msg := intentMessage(t, Intent{Type: "haggle", AuctionID: f.auction.ID.String()})
	f.handler.dispatch(context.Background(), f.session, msg)

	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeError, ev.Type)
}

func TestJoin_DeliversSnapshotAndAnnouncesPresence(t *testing.T) {
	f := newGatewayFixture(t)

	msg := intentMessage(t, Intent{Type: IntentJoin, AuctionID: f.auction.ID.String()})
	f.handler.dispatch(context.Background(), f.session, msg)

	check.Equal(t, []string{f.auction.ID.String()}, f.rooms.joins)

	// The joining connection gets the auction snapshot directly.
	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeRoomJoined, ev.Type)
	var payload events.RoomJoinedPayload
	assert.NoError(t, json.Unmarshal(ev.Data, &payload))
	check.Equal(t, f.session.UserID(), payload.UserID)
	assert.NotNil(t, payload.Auction)
	check.Equal(t, f.auction.ID, payload.Auction.ID)

	// The room sees a presence notice without the snapshot.
	assert.Equal(t, 1, len(f.rooms.published))
	check.Equal(t, events.EventTypeRoomJoined, f.rooms.published[0].Type)
}

func TestJoin_UnknownAuctionRejectedOnThisConnectionOnly(t *testing.T) {
	f := newGatewayFixture(t)

	msg := intentMessage(t, Intent{Type: IntentJoin, AuctionID: uuid.NewString()})
	f.handler.dispatch(context.Background(), f.session, msg)

	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeError, ev.Type)
	var payload events.ErrorPayload
	assert.NoError(t, json.Unmarshal(ev.Data, &payload))
	check.Equal(t, "not_found", payload.Code)

	check.Equal(t, 0, len(f.rooms.joins))
	check.Equal(t, 0, len(f.rooms.published))
}

func TestJoin_DuplicateJoinAnnouncesOnce(t *testing.T) {
	f := newGatewayFixture(t)
	msg := intentMessage(t, Intent{Type: IntentJoin, AuctionID: f.auction.ID.String()})

	f.handler.dispatch(context.Background(), f.session, msg)
	f.handler.dispatch(context.Background(), f.session, msg)

	check.Equal(t, 1, len(f.rooms.published))
}

func TestLeave_AnnouncesOnlyWhenJoined(t *testing.T) {
	f := newGatewayFixture(t)
	auctionID := f.auction.ID.String()

	// Leaving a room never joined is a no-op beyond the broadcaster call.
	f.handler.dispatch(context.Background(), f.session, intentMessage(t, Intent{Type: IntentLeave, AuctionID: auctionID}))
	check.Equal(t, 0, len(f.rooms.published))

	f.handler.dispatch(context.Background(), f.session, intentMessage(t, Intent{Type: IntentJoin, AuctionID: auctionID}))
	nextEvent(t, f.session) // snapshot
	f.handler.dispatch(context.Background(), f.session, intentMessage(t, Intent{Type: IntentLeave, AuctionID: auctionID}))

	assert.Equal(t, 2, len(f.rooms.published))
	check.Equal(t, events.EventTypeRoomLeft, f.rooms.published[1].Type)
}

func TestPlaceBid_OutcomeReportedWithoutJoining(t *testing.T) {
	f := newGatewayFixture(t)
	placedAt := time.Date(2026, 3, 1, 12, 31, 0, 0, time.UTC)
	bid := models.Bid{ID: uuid.New(), BidderID: f.session.identity.UserID, Amount: decimal.NewFromInt(110), PlacedAt: placedAt}
	f.bids.outcome = &sequencer.BidOutcome{
		Auction:      f.auction,
		Bid:          bid,
		CurrentPrice: decimal.NewFromInt(110),
	}

	msg := intentMessage(t, Intent{Type: IntentPlaceBid, AuctionID: f.auction.ID.String(), Amount: decimal.NewFromInt(110)})
	f.handler.dispatch(context.Background(), f.session, msg)

	check.Equal(t, f.auction.ID, f.bids.auctionID)
	check.Equal(t, f.session.identity.UserID, f.bids.bidderID)
	check.True(t, f.bids.amount.Equal(decimal.NewFromInt(110)))

	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeBidAccepted, ev.Type)
	var payload events.BidAcceptedPayload
	assert.NoError(t, json.Unmarshal(ev.Data, &payload))
	check.Equal(t, bid.ID.String(), payload.BidID)
	check.True(t, payload.CurrentPrice.Equal(decimal.NewFromInt(110)))

	// Room fan-out rides the event backbone, not the gateway.
	check.Equal(t, 0, len(f.rooms.published))
	noEvent(t, f.session)
}

func TestPlaceBid_CompletionDeliveredToBidder(t *testing.T) {
	f := newGatewayFixture(t)
	winner := f.session.identity.UserID
	bid := models.Bid{ID: uuid.New(), BidderID: winner, Amount: decimal.NewFromInt(500), PlacedAt: time.Now()}
	completedAuction := *f.auction
	completedAuction.Status = models.AuctionStatusCompleted
	f.bids.outcome = &sequencer.BidOutcome{
		Auction:      &completedAuction,
		Bid:          bid,
		CurrentPrice: decimal.NewFromInt(500),
		Completed:    true,
		WinnerID:     &winner,
	}

	msg := intentMessage(t, Intent{Type: IntentPlaceBid, AuctionID: f.auction.ID.String(), Amount: decimal.NewFromInt(500)})
	f.handler.dispatch(context.Background(), f.session, msg)

	check.Equal(t, events.EventTypeBidAccepted, nextEvent(t, f.session).Type)
	ev := nextEvent(t, f.session)
	check.Equal(t, events.EventTypeAuctionCompleted, ev.Type)
	var payload events.AuctionCompletedPayload
	assert.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.NotNil(t, payload.WinnerID)
	check.Equal(t, winner.String(), *payload.WinnerID)
}

func TestPlaceBid_RejectionScopedToConnection(t *testing.T) {
	f := newGatewayFixture(t)

	cases := map[string]struct {
		err  error
		code string
	}{
		"below floor":  {fmt.Errorf("bid below floor: %w", auction.ErrValidation), "bid_rejected"},
		"not active":   {auction.ErrInvalidState, "invalid_state"},
		"own auction":  {auction.ErrUnauthorized, "unauthorized"},
		"unknown":      {auction.ErrNotFound, "not_found"},
		"store down":   {fmt.Errorf("confirm bid write: %w", auction.ErrPersistence), "retryable"},
		"unclassified": {errors.New("boom"), "internal"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f.bids.err = tc.err
			msg := intentMessage(t, Intent{Type: IntentPlaceBid, AuctionID: f.auction.ID.String(), Amount: decimal.NewFromInt(1)})
			f.handler.dispatch(context.Background(), f.session, msg)

			ev := nextEvent(t, f.session)
			check.Equal(t, events.EventTypeError, ev.Type)
			var payload events.ErrorPayload
			assert.NoError(t, json.Unmarshal(ev.Data, &payload))
			check.Equal(t, tc.code, payload.Code)
			check.Equal(t, 0, len(f.rooms.published))
		})
	}
}

func TestSession_EvictionTearsDownAndAnnouncesDeparture(t *testing.T) {
	ctx := context.Background()
	rooms := broadcast.New(nil)
	auctionID := uuid.New()
	auctions := &fakeAuctions{auctions: map[uuid.UUID]*models.Auction{}}
	verifier := auth.NewVerifier([]byte("test-secret"))

	// The laggard's send buffer holds a single event; the watcher keeps the
	// default buffer so it observes the fallout.
	laggardCfg := DefaultConfig()
	laggardCfg.SendBufferSize = 1
	laggard := newSession(NewHandler(verifier, auctions, &fakeBids{}, rooms, laggardCfg),
		auth.Identity{UserID: uuid.New()}, nil)
	watcher := newSession(NewHandler(verifier, auctions, &fakeBids{}, rooms, DefaultConfig()),
		auth.Identity{UserID: uuid.New()}, nil)

	rooms.Join(ctx, auctionID.String(), laggard)
	laggard.trackJoin(auctionID.String())
	rooms.Join(ctx, auctionID.String(), watcher)
	watcher.trackJoin(auctionID.String())

	ev, err := events.New(auctionID, events.EventTypeBidAccepted, time.Now(), events.BidAcceptedPayload{})
	assert.NoError(t, err)
	rooms.Publish(auctionID.String(), ev)
	rooms.Publish(auctionID.String(), ev)

	// The laggard is evicted and fully torn down, not left half-subscribed.
	check.Equal(t, 1, rooms.RoomSize(auctionID.String()))
	laggard.mu.Lock()
	closed := laggard.closed
	laggard.mu.Unlock()
	check.True(t, closed)

	// The room is told the laggard left.
	check.Equal(t, events.EventTypeBidAccepted, nextEvent(t, watcher).Type)
	check.Equal(t, events.EventTypeBidAccepted, nextEvent(t, watcher).Type)
	left := nextEvent(t, watcher)
	check.Equal(t, events.EventTypeRoomLeft, left.Type)
	var payload events.RoomLeftPayload
	assert.NoError(t, json.Unmarshal(left.Data, &payload))
	check.Equal(t, laggard.UserID(), payload.UserID)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/auctions", nil)
	r.Header.Set("Authorization", "Bearer tok-123")
	check.Equal(t, "tok-123", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws/auctions?token=tok-456", nil)
	check.Equal(t, "tok-456", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws/auctions", nil)
	check.Equal(t, "", bearerToken(r))
}

func TestHandleAuctionSocket_RejectsUnauthenticated(t *testing.T) {
	f := newGatewayFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(f.handler.HandleAuctionSocket))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	assert.NoError(t, err)
	defer resp.Body.Close()
	check.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleAuctionSocket_AuthenticatedRoundTrip(t *testing.T) {
	f := newGatewayFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(f.handler.HandleAuctionSocket))
	defer srv.Close()

	token, err := f.handler.verifier.Sign(auth.Identity{UserID: uuid.New()}, time.Hour)
	assert.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// A join intent over the wire comes back with the snapshot.
	msg := intentMessage(t, Intent{Type: IntentJoin, AuctionID: f.auction.ID.String()})
	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	var ev events.Event
	assert.NoError(t, json.Unmarshal(data, &ev))
	check.Equal(t, events.EventTypeRoomJoined, ev.Type)
}

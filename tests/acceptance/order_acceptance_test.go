package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peplixcoin/cmeoi-sub001/client"
	"github.com/peplixcoin/cmeoi-sub001/config"
	"github.com/peplixcoin/cmeoi-sub001/controllers"
	"github.com/peplixcoin/cmeoi-sub001/middleware"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/peplixcoin/cmeoi-sub001/services"
	"github.com/peplixcoin/cmeoi-sub001/tests/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const waitFor = 3 * time.Second

// loadTestConfig points config.Load at an in-memory database and the HS256 test secret
func loadTestConfig() (*config.Config, error) {
	os.Setenv("GO_ENV", "test")
	os.Setenv("DATABASE_DRIVER", "sqlite")
	os.Setenv("DATABASE_URL", "")
	os.Setenv("AUTH0_DOMAIN", "")
	os.Setenv("AUTH0_AUDIENCE", testutil.TestAudience)
	os.Setenv("JWT_SECRET", testutil.TestJWTSecret)
	os.Setenv("JWT_ISSUER", testutil.TestIssuer)
	os.Setenv("PORT", "8080")
	return config.Load()
}

// newRouter mounts the order and stream endpoints behind real token checks
func newRouter(cfg *config.Config, db *gorm.DB) (*gin.Engine, *services.Notifier) {
	log, _ := test.NewNullLogger()
	notifier := services.NewNotifier(log)
	orderService := services.NewOrderService(db, notifier, log)
	adminService := services.NewAdminService(db)

	orders := controllers.NewOrderController(orderService, adminService)
	streams := controllers.NewStreamController(notifier, adminService, cfg.StreamBufferSize, log)

	kitchen := middleware.RequireRole(models.RoleSuperAdmin, models.RoleManager, models.RoleCook)
	delivery := middleware.RequireRole(models.RoleDeliveryMan)

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order service is running"})
	})

	auth := v1.Group("", middleware.EnsureValidToken(cfg))
	{
		auth.POST("/orders", orders.Create(models.KindDine))
		auth.GET("/orders", kitchen, orders.Snapshot(models.KindDine, services.ListQuery{}))
		auth.GET("/orders/stream", kitchen, streams.Stream(models.KindDine, services.All()))
		auth.GET("/orders/approved", kitchen, orders.Snapshot(models.KindDine, services.ListQuery{Status: models.StatusApproved}))
		auth.GET("/orders/approved/stream", kitchen, streams.Stream(models.KindDine, services.StatusIs(models.StatusApproved)))
		auth.GET("/orders/:id", orders.UserSnapshot(models.KindDine))
		auth.GET("/orders/:id/stream", streams.UserStream(models.KindDine))
		auth.PATCH("/orders/:id/status", kitchen, orders.UpdateStatus(models.KindDine))

		auth.POST("/orders/online", orders.Create(models.KindOnline))
		auth.GET("/orders/online", kitchen, orders.Snapshot(models.KindOnline, services.ListQuery{}))
		auth.GET("/orders/online/stream", kitchen, streams.Stream(models.KindOnline, services.All()))
		auth.GET("/orders/online/approved/cook", kitchen,
			orders.Snapshot(models.KindOnline, services.ListQuery{Status: models.StatusApproved, Unassigned: true}))
		auth.GET("/orders/online/approved/cook/stream", kitchen, streams.Stream(models.KindOnline, services.StatusIs(models.StatusApproved)))
		auth.GET("/orders/online/delivery", delivery, orders.DeliverySnapshot)
		auth.GET("/orders/online/delivery/stream", delivery, streams.DeliveryStream)
		auth.PATCH("/orders/online/:id/status", kitchen, orders.UpdateStatus(models.KindOnline))
		auth.PATCH("/orders/online/:id/payment", kitchen, orders.UpdatePayment(models.KindOnline))
		auth.PATCH("/orders/online/:id/assign-delivery", kitchen, orders.AssignDelivery)
	}

	return router, notifier
}

// OrderAcceptanceTestSuite drives client views against a running server
type OrderAcceptanceTestSuite struct {
	suite.Suite
	cfg      *config.Config
	db       *gorm.DB
	notifier *services.Notifier
	server   *httptest.Server

	cookToken  string
	aliceToken string
	cancel     context.CancelFunc
	ctx        context.Context
}

// SetupSuite runs once before all tests
func (suite *OrderAcceptanceTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)

	cfg, err := loadTestConfig()
	suite.Require().NoError(err)
	suite.cfg = cfg
}

// SetupTest gives every test a fresh database and server
func (suite *OrderAcceptanceTestSuite) SetupTest() {
	suite.db = testutil.NewTestDB(suite.T())

	var router *gin.Engine
	router, suite.notifier = newRouter(suite.cfg, suite.db)
	suite.server = httptest.NewServer(router)

	suite.cookToken = testutil.SignToken(suite.T(), "auth0|cook", string(models.RoleCook), "cook")
	suite.aliceToken = testutil.SignToken(suite.T(), "auth0|alice", "", "alice")
	suite.ctx, suite.cancel = context.WithCancel(context.Background())
}

// TearDownTest stops every feed before the server goes away
func (suite *OrderAcceptanceTestSuite) TearDownTest() {
	suite.cancel()
	suite.server.Close()
}

func (suite *OrderAcceptanceTestSuite) send(method, path, token string, body interface{}) map[string]interface{} {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, suite.server.URL+path, &buf)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	var response map[string]interface{}
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&response))
	suite.Require().True(resp.StatusCode < 300, "%s %s: %d %v", method, path, resp.StatusCode, response)
	return response
}

// startFeed runs feed until the test ends and waits for its stream to open
func startFeed[T models.Document](suite *OrderAcceptanceTestSuite, feed *client.Feed[T]) {
	go func() { _ = feed.Run(suite.ctx) }()
	suite.Require().Eventually(func() bool {
		return feed.Subscription().State() == client.StateOpen
	}, waitFor, 10*time.Millisecond)
}

func orderIDs[T models.Document](view *client.View[T]) []string {
	var out []string
	for _, doc := range view.Orders() {
		out = append(out, doc.Header().OrderID)
	}
	return out
}

func statusOf[T models.Document](view *client.View[T], orderID string) models.OrderStatus {
	for _, doc := range view.Orders() {
		if doc.Header().OrderID == orderID {
			return doc.Header().OrderStatus
		}
	}
	return ""
}

// TestKitchenViewLifecycle walks ORD-1 from pending to completed while a
// kitchen view follows approved orders and a manager view follows all of them.
func (suite *OrderAcceptanceTestSuite) TestKitchenViewLifecycle() {
	api := client.New(suite.server.URL, suite.cookToken)

	kitchen := client.NewFeed(api, "/api/v1/orders/approved", client.Completed[*models.Order], 0)
	all := client.NewFeed[*models.Order](api, "/api/v1/orders", nil, 0)
	startFeed(suite, kitchen)
	startFeed(suite, all)

	suite.send(http.MethodPost, "/api/v1/orders", suite.aliceToken, gin.H{
		"order_id": "ORD-1", "table_number": 5,
		"items": []gin.H{{"item_id": "1", "item_name": "Chole Bhature", "qty": 1, "item_price": 180}},
	})
	suite.Require().Eventually(func() bool { return statusOf(all.View, "ORD-1") == models.StatusPending }, waitFor, 10*time.Millisecond)
	assert.Equal(suite.T(), 0, kitchen.View.Len())

	suite.send(http.MethodPatch, "/api/v1/orders/ORD-1/status", suite.cookToken, gin.H{"status": "approved"})
	suite.Require().Eventually(func() bool { return statusOf(kitchen.View, "ORD-1") == models.StatusApproved }, waitFor, 10*time.Millisecond)

	response := suite.send(http.MethodPatch, "/api/v1/orders/ORD-1/status", suite.cookToken, gin.H{"status": "completed"})
	suite.Require().Eventually(func() bool { return statusOf(all.View, "ORD-1") == models.StatusCompleted }, waitFor, 10*time.Millisecond)

	// the approved stream never carries the completion
	assert.Never(suite.T(), func() bool { return statusOf(kitchen.View, "ORD-1") != models.StatusApproved }, 200*time.Millisecond, 20*time.Millisecond)

	// the kitchen applies the response of its own mutation, which removes the order
	raw, err := json.Marshal(response["data"])
	suite.Require().NoError(err)
	var completed models.Order
	suite.Require().NoError(json.Unmarshal(raw, &completed))
	kitchen.View.Apply(&completed)
	assert.Equal(suite.T(), 0, kitchen.View.Len())
}

// TestAssignmentMovesOrderBetweenViews checks the cook and delivery views around an assignment
func (suite *OrderAcceptanceTestSuite) TestAssignmentMovesOrderBetweenViews() {
	ravi := &models.Admin{Auth0ID: "auth0|ravi", Username: "ravi", Role: models.RoleDeliveryMan}
	meena := &models.Admin{Auth0ID: "auth0|meena", Username: "meena", Role: models.RoleDeliveryMan}
	suite.Require().NoError(suite.db.Create(ravi).Error)
	suite.Require().NoError(suite.db.Create(meena).Error)

	cookView := client.NewFeed(client.New(suite.server.URL, suite.cookToken),
		"/api/v1/orders/online/approved/cook", client.AssignedOrCompleted[*models.OnlineOrder], 0)
	raviView := client.NewFeed(client.New(suite.server.URL, testutil.SignToken(suite.T(), "auth0|ravi", "DeliveryMan", "ravi")),
		"/api/v1/orders/online/delivery", client.NotAssignedTo[*models.OnlineOrder](ravi.ID), 0)
	meenaView := client.NewFeed(client.New(suite.server.URL, testutil.SignToken(suite.T(), "auth0|meena", "DeliveryMan", "meena")),
		"/api/v1/orders/online/delivery", client.NotAssignedTo[*models.OnlineOrder](meena.ID), 0)
	startFeed(suite, cookView)
	startFeed(suite, raviView)
	startFeed(suite, meenaView)

	suite.send(http.MethodPost, "/api/v1/orders/online", suite.aliceToken, gin.H{
		"order_id": "WEB-1", "address": "21 Park Street", "mobile_number": "9822222222",
		"items": []gin.H{{"item_id": "5", "item_name": "Kathi Roll", "qty": 2, "item_price": 110}},
	})
	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-1/status", suite.cookToken, gin.H{"status": "approved"})
	suite.Require().Eventually(func() bool { return cookView.View.Len() == 1 }, waitFor, 10*time.Millisecond)

	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-1/assign-delivery", suite.cookToken, gin.H{"deliverymanId": ravi.ID})

	suite.Require().Eventually(func() bool { return cookView.View.Len() == 0 }, waitFor, 10*time.Millisecond)
	suite.Require().Eventually(func() bool {
		ids := orderIDs(raviView.View)
		return len(ids) == 1 && ids[0] == "WEB-1"
	}, waitFor, 10*time.Millisecond)
	assert.Never(suite.T(), func() bool { return meenaView.View.Len() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}

// TestConcurrentAdminsConverge checks that two admin views end up identical
func (suite *OrderAcceptanceTestSuite) TestConcurrentAdminsConverge() {
	first := client.NewFeed[*models.OnlineOrder](client.New(suite.server.URL, suite.cookToken), "/api/v1/orders/online", nil, 0)
	second := client.NewFeed[*models.OnlineOrder](client.New(suite.server.URL, suite.cookToken), "/api/v1/orders/online", nil, 0)
	startFeed(suite, first)
	startFeed(suite, second)

	for _, id := range []string{"WEB-1", "WEB-2", "WEB-3"} {
		suite.send(http.MethodPost, "/api/v1/orders/online", suite.aliceToken, gin.H{
			"order_id": id, "address": "7 Ring Road", "mobile_number": "9833333333",
			"items": []gin.H{{"item_id": "2", "item_name": "Momos", "qty": 1, "item_price": 90}},
		})
	}
	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-2/status", suite.cookToken, gin.H{"status": "approved"})
	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-3/payment", suite.cookToken, gin.H{"payment_status": "paid"})

	suite.Require().Eventually(func() bool {
		return statusOf(first.View, "WEB-2") == models.StatusApproved && statusOf(second.View, "WEB-2") == models.StatusApproved
	}, waitFor, 10*time.Millisecond)

	suite.Require().Eventually(func() bool {
		a, b := first.View.Orders(), second.View.Orders()
		if len(a) != 3 || len(b) != 3 {
			return false
		}
		for i := range a {
			if a[i].OrderID != b[i].OrderID || a[i].OrderStatus != b[i].OrderStatus || a[i].PaymentStatus != b[i].PaymentStatus {
				return false
			}
		}
		return true
	}, waitFor, 10*time.Millisecond)
}

// TestPollingRecoversMissedChanges writes around the notifier and waits for the poller
func (suite *OrderAcceptanceTestSuite) TestPollingRecoversMissedChanges() {
	cook := client.NewFeed(client.New(suite.server.URL, suite.cookToken),
		"/api/v1/orders/online/approved/cook", client.AssignedOrCompleted[*models.OnlineOrder], 20*time.Millisecond)
	startFeed(suite, cook)

	suite.send(http.MethodPost, "/api/v1/orders/online", suite.aliceToken, gin.H{
		"order_id": "WEB-1", "address": "3 Hill Road", "mobile_number": "9844444444",
		"items": []gin.H{{"item_id": "4", "item_name": "Pav Bhaji", "qty": 1, "item_price": 150}},
	})
	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-1/status", suite.cookToken, gin.H{"status": "approved"})
	suite.Require().Eventually(func() bool { return cook.View.Len() == 1 }, waitFor, 10*time.Millisecond)

	// no publish happens for this row; only the poller can find it
	missed := &models.OnlineOrder{
		OrderHeader: models.OrderHeader{
			OrderID:       "WEB-2",
			Username:      "bob",
			OrderTime:     time.Now(),
			Items:         []models.OrderItem{{ItemID: "4", ItemName: "Pav Bhaji", Qty: 1, ItemPrice: 150, TotalPrice: 150}},
			TotalAmt:      150,
			OrderStatus:   models.StatusApproved,
			PaymentStatus: models.PaymentPending,
		},
		Address:      "9 Hill Road",
		MobileNumber: "9855555555",
	}
	suite.Require().NoError(suite.db.Create(missed).Error)

	suite.Require().Eventually(func() bool {
		ids := orderIDs(cook.View)
		return len(ids) == 2 && ids[0] == "WEB-2"
	}, waitFor, 10*time.Millisecond)
}

// TestCompletionByAnotherCookLeavesKitchenView checks that polling drops an
// order another client completed, which the approved stream never forwards
func (suite *OrderAcceptanceTestSuite) TestCompletionByAnotherCookLeavesKitchenView() {
	kitchen := client.NewFeed(client.New(suite.server.URL, suite.cookToken),
		"/api/v1/orders/approved", client.Completed[*models.Order], 50*time.Millisecond)
	startFeed(suite, kitchen)

	otherCook := testutil.SignToken(suite.T(), "auth0|cook2", string(models.RoleCook), "cook2")
	suite.send(http.MethodPost, "/api/v1/orders", suite.aliceToken, gin.H{
		"order_id": "ORD-1", "table_number": 3,
		"items": []gin.H{{"item_id": "1", "item_name": "Vada Pav", "qty": 2, "item_price": 40}},
	})
	suite.send(http.MethodPatch, "/api/v1/orders/ORD-1/status", otherCook, gin.H{"status": "approved"})
	suite.Require().Eventually(func() bool { return statusOf(kitchen.View, "ORD-1") == models.StatusApproved }, waitFor, 10*time.Millisecond)

	suite.send(http.MethodPatch, "/api/v1/orders/ORD-1/status", otherCook, gin.H{"status": "completed"})

	suite.Require().Eventually(func() bool { return kitchen.View.Len() == 0 }, waitFor, 10*time.Millisecond)
}

// TestReassignmentLeavesPreviousAgentView moves an order from one agent to another
func (suite *OrderAcceptanceTestSuite) TestReassignmentLeavesPreviousAgentView() {
	ravi := &models.Admin{Auth0ID: "auth0|ravi", Username: "ravi", Role: models.RoleDeliveryMan}
	meena := &models.Admin{Auth0ID: "auth0|meena", Username: "meena", Role: models.RoleDeliveryMan}
	suite.Require().NoError(suite.db.Create(ravi).Error)
	suite.Require().NoError(suite.db.Create(meena).Error)

	raviView := client.NewFeed(client.New(suite.server.URL, testutil.SignToken(suite.T(), "auth0|ravi", "DeliveryMan", "ravi")),
		"/api/v1/orders/online/delivery", client.NotAssignedTo[*models.OnlineOrder](ravi.ID), 50*time.Millisecond)
	meenaView := client.NewFeed(client.New(suite.server.URL, testutil.SignToken(suite.T(), "auth0|meena", "DeliveryMan", "meena")),
		"/api/v1/orders/online/delivery", client.NotAssignedTo[*models.OnlineOrder](meena.ID), 50*time.Millisecond)
	startFeed(suite, raviView)
	startFeed(suite, meenaView)

	suite.send(http.MethodPost, "/api/v1/orders/online", suite.aliceToken, gin.H{
		"order_id": "WEB-1", "address": "4 Lake Road", "mobile_number": "9866666666",
		"items": []gin.H{{"item_id": "6", "item_name": "Thali", "qty": 1, "item_price": 250}},
	})
	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-1/status", suite.cookToken, gin.H{"status": "approved"})
	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-1/assign-delivery", suite.cookToken, gin.H{"deliverymanId": ravi.ID})
	suite.Require().Eventually(func() bool { return raviView.View.Len() == 1 }, waitFor, 10*time.Millisecond)

	suite.send(http.MethodPatch, "/api/v1/orders/online/WEB-1/assign-delivery", suite.cookToken, gin.H{"deliverymanId": meena.ID})

	suite.Require().Eventually(func() bool {
		ids := orderIDs(meenaView.View)
		return len(ids) == 1 && ids[0] == "WEB-1"
	}, waitFor, 10*time.Millisecond)
	suite.Require().Eventually(func() bool { return raviView.View.Len() == 0 }, waitFor, 10*time.Millisecond)
}

// TestCustomerSeesOnlyOwnOrders follows one customer's stream
func (suite *OrderAcceptanceTestSuite) TestCustomerSeesOnlyOwnOrders() {
	mine := client.NewFeed[*models.Order](client.New(suite.server.URL, suite.aliceToken), "/api/v1/orders/alice", nil, 0)
	startFeed(suite, mine)

	bobToken := testutil.SignToken(suite.T(), "auth0|bob", "", "bob")
	for _, order := range []struct{ id, token string }{{"ORD-B", bobToken}, {"ORD-A", suite.aliceToken}} {
		suite.send(http.MethodPost, "/api/v1/orders", order.token, gin.H{
			"order_id": order.id, "table_number": 1,
			"items": []gin.H{{"item_id": "1", "item_name": "Idli", "qty": 2, "item_price": 60}},
		})
	}

	suite.Require().Eventually(func() bool { return mine.View.Len() == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(suite.T(), []string{"ORD-A"}, orderIDs(mine.View))
}

// TestOrderAcceptanceTestSuite runs the acceptance test suite
func TestOrderAcceptanceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderAcceptanceTestSuite))
}

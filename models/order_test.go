package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "orders", Order{}.TableName())
	assert.Equal(t, "online_orders", OnlineOrder{}.TableName())
	assert.Equal(t, "admins", Admin{}.TableName())
}

func TestNewDocument(t *testing.T) {
	assert.IsType(t, &Order{}, NewDocument(KindDine))
	assert.IsType(t, &OnlineOrder{}, NewDocument(KindOnline))
	assert.Equal(t, KindOnline, NewDocument(KindOnline).Kind())
}

func TestComputeTotals(t *testing.T) {
	items := []OrderItem{
		{ItemID: "m1", ItemName: "Paneer Tikka", Qty: 2, ItemPrice: 250},
		{ItemID: "m2", ItemName: "Lime Soda", Qty: 3, ItemPrice: 60},
	}

	total := ComputeTotals(items)

	assert.Equal(t, 680.0, total)
	assert.Equal(t, 500.0, items[0].TotalPrice)
	assert.Equal(t, 180.0, items[1].TotalPrice)
}

func TestAssignee(t *testing.T) {
	agent := "agent-1"
	assert.Nil(t, (&Order{}).Assignee())
	assert.Nil(t, (&OnlineOrder{}).Assignee())
	assert.Equal(t, &agent, (&OnlineOrder{DeliverymanID: &agent}).Assignee())
}

func TestOnlineOrderJSONShape(t *testing.T) {
	order := OnlineOrder{
		OrderHeader: OrderHeader{
			OrderID:     "ORD-1",
			Username:    "asha",
			OrderStatus: StatusApproved,
			Items:       []OrderItem{{ItemID: "m1", Qty: 1, ItemPrice: 10, TotalPrice: 10}},
		},
		Address: "12 Club Road",
	}

	raw, err := json.Marshal(&order)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "ORD-1", fields["order_id"])
	assert.Equal(t, "approved", fields["order_status"])
	assert.Contains(t, fields, "deliverymanId")
	assert.Nil(t, fields["deliverymanId"])
	assert.Nil(t, fields["completion_time"])
	assert.Len(t, fields["items"], 1)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, PaymentPaid.Valid())
	assert.False(t, PaymentStatus("refunded").Valid())
	assert.True(t, RoleDeliveryMan.Valid())
	assert.False(t, Role("Chef").Valid())
	assert.True(t, KindDine.Valid())
	assert.False(t, Kind("takeaway").Valid())
}

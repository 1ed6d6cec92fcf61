package services

import "github.com/peplixcoin/cmeoi-sub001/models"

// Filter decides whether a published document belongs to a view
type Filter func(doc models.Document) bool

// All accepts every document
func All() Filter {
	return func(models.Document) bool { return true }
}

// StatusIs accepts documents whose order status equals status
func StatusIs(status models.OrderStatus) Filter {
	return func(doc models.Document) bool {
		return doc.Header().OrderStatus == status
	}
}

// AssignedTo accepts documents assigned to the given delivery agent
func AssignedTo(agentID string) Filter {
	return func(doc models.Document) bool {
		a := doc.Assignee()
		return a != nil && *a == agentID
	}
}

// OwnedBy accepts documents placed by username
func OwnedBy(username string) Filter {
	return func(doc models.Document) bool {
		return doc.Header().Username == username
	}
}

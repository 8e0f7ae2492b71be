package endpoint_test

import (
	"testing"
	"time"

	"github.com/artpar/relayledger/domain/endpoint"
)

func TestEndpoint_SoftDelete(t *testing.T) {
	now := time.Now()
	ep := endpoint.Endpoint{ID: "ep1", OrgID: "org1", IsActive: true}

	if !ep.CanServe() || !ep.Reinstatable() {
		t.Fatal("fresh endpoint should serve and be reinstatable")
	}

	deleted := ep.SoftDelete(now)
	if deleted.CanServe() {
		t.Error("deleted endpoint must not serve")
	}
	if deleted.Reinstatable() {
		t.Error("deleted endpoint must not be reinstatable")
	}
	if !ep.CanServe() {
		t.Error("SoftDelete must not mutate the receiver")
	}
}

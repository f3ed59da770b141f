package dispatcher

import (
	"context"
	"testing"

	"prpc/codec"
	"prpc/controller"
	"prpc/service"
)

type echoRegistrant struct{}

func (echoRegistrant) ServiceName() string { return "Echo" }
func (echoRegistrant) Methods() []service.MethodEntry {
	m := service.NewEncapsulatedMethod(
		"Echo",
		codec.JSONCodec[string]{}, codec.JSONCodec[string]{},
		func(ctx context.Context, req string, ctrl *controller.Controller) (string, *controller.Controller, error) {
			return req, ctrl, nil
		},
	)
	return []service.MethodEntry{{Name: "Echo", Method: m}}
}

func TestBuildAndLookup(t *testing.T) {
	d, err := Build(echoRegistrant{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m, ok := d.Lookup("Echo", "Echo")
	if !ok || m == nil {
		t.Fatal("expected Echo/Echo to be found")
	}
	if _, ok := d.Lookup("Echo", "Missing"); ok {
		t.Fatal("expected Echo/Missing to be absent")
	}
	if _, ok := d.Lookup("Missing", "Echo"); ok {
		t.Fatal("expected Missing/Echo to be absent")
	}
}

func TestBuildDuplicateMethod(t *testing.T) {
	_, err := Build(echoRegistrant{}, echoRegistrant{})
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestServiceNames(t *testing.T) {
	d := MustBuild(echoRegistrant{})
	names := d.ServiceNames()
	if len(names) != 1 || names[0] != "Echo" {
		t.Fatalf("got %v, want [Echo]", names)
	}
}

package message

import "testing"

func TestRpcRequestMetaRoundTrip(t *testing.T) {
	in := &RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo", SequenceId: 7}
	data, err := in.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := &RpcRequestMeta{}
	if err := out.Unmarshal(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestRpcResponseMetaRoundTrip(t *testing.T) {
	in := &RpcResponseMeta{SequenceId: 7, ErrorCode: 3, ErrorText: "boom"}
	data, err := in.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := &RpcResponseMeta{}
	if err := out.Unmarshal(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestServiceMethod(t *testing.T) {
	meta := &RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
	if got, want := meta.ServiceMethod(), "Echo/Echo"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

package vkcore

import (
	"testing"

	lin "github.com/xlab/linmath"
)

func TestNegateViewportHeight(t *testing.T) {
	vpY, vpHeight := negateViewportHeight(800, 600, 0, 0)
	if vpY != 600 {
		t.Fatalf("negateViewportHeight vpY:\nhave %v\nwant 600", vpY)
	}
	if vpHeight != -600 {
		t.Fatalf("negateViewportHeight vpHeight:\nhave %v\nwant -600", vpHeight)
	}

	vpY2, vpHeight2 := negateViewportHeight(800, 600, 10, 20)
	if vpY2 != 620 {
		t.Fatalf("negateViewportHeight with a non-zero origin, vpY:\nhave %v\nwant 620", vpY2)
	}
	if vpHeight2 != -600 {
		t.Fatalf("negateViewportHeight with a non-zero origin, vpHeight:\nhave %v\nwant -600", vpHeight2)
	}
}

func TestCorrectedProjectionIdentity(t *testing.T) {
	var id lin.Mat4x4
	id.Fill(1.0)

	var got lin.Mat4x4
	CorrectedProjection(&got, &id)
	if got != clipCorrection {
		t.Fatalf("CorrectedProjection(identity):\nhave %v\nwant the clip-correction matrix", got)
	}

	// Y is flipped and depth compressed: a point at z=-1 (GL near) lands
	// on z=0, z=1 (GL far) stays at 1.
	if got[1][1] != -1 {
		t.Fatal("corrected projection did not flip Y")
	}
	if got[2][2] != 0.5 || got[3][2] != 0.5 {
		t.Fatal("corrected projection did not compress the depth range")
	}
}

func TestPushProjectionWritesPushConstants(t *testing.T) {
	var cb CommandBuffer
	var proj lin.Mat4x4
	proj.Fill(1.0)

	cb.PushProjection(&proj)
	if cb.pushSize != 64 {
		t.Fatalf("PushProjection pushSize:\nhave %d\nwant 64", cb.pushSize)
	}
	if !cb.isDirty(dirtyPushConstants) {
		t.Fatal("PushProjection did not mark dirtyPushConstants")
	}
}

package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

func TestTranslateStateCoversEveryKnownState(t *testing.T) {
	for s := metadata.ResourceStateUndefined; s < metadata.ResourceStateUnknown; s++ {
		if _, ok := translateState(s); !ok {
			t.Errorf("%s has no translation", s)
		}
	}
	if _, ok := translateState(metadata.ResourceStateUnknown); ok {
		t.Error("Unknown must not translate")
	}
}

func TestTranslateStateLayouts(t *testing.T) {
	cases := []struct {
		state  metadata.ResourceState
		layout vk.ImageLayout
		write  bool
	}{
		{metadata.ResourceStateUndefined, vk.ImageLayoutUndefined, false},
		{metadata.ResourceStateRenderTarget, vk.ImageLayoutColorAttachmentOptimal, true},
		{metadata.ResourceStateDepthWrite, vk.ImageLayoutDepthStencilAttachmentOptimal, true},
		{metadata.ResourceStateDepthRead, vk.ImageLayoutDepthStencilReadOnlyOptimal, false},
		{metadata.ResourceStatePixelShaderResource, vk.ImageLayoutShaderReadOnlyOptimal, false},
		{metadata.ResourceStateUnorderedAccess, vk.ImageLayoutGeneral, true},
		{metadata.ResourceStateCopySource, vk.ImageLayoutTransferSrcOptimal, false},
		{metadata.ResourceStateCopyDest, vk.ImageLayoutTransferDstOptimal, true},
		{metadata.ResourceStatePresent, vk.ImageLayoutPresentSrc, false},
	}
	writeBits := vk.AccessShaderWriteBit | vk.AccessColorAttachmentWriteBit |
		vk.AccessDepthStencilAttachmentWriteBit | vk.AccessTransferWriteBit | vk.AccessMemoryWriteBit
	for _, c := range cases {
		t.Run(c.state.String(), func(t *testing.T) {
			info, ok := translateState(c.state)
			if !ok {
				t.Fatal("no translation")
			}
			if info.layout != c.layout {
				t.Errorf("layout = %d, want %d", info.layout, c.layout)
			}
			if got := info.access&writeBits != 0; got != c.write {
				t.Errorf("write access = %t, want %t", got, c.write)
			}
			if info.stage == 0 {
				t.Error("empty stage mask")
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for f := metadata.FormatRGBA8Unorm; f <= metadata.FormatD24UnormS8Uint; f++ {
		v := toVkFormat(f)
		if v == vk.FormatUndefined {
			t.Errorf("format %d has no Vulkan equivalent", f)
			continue
		}
		if back := fromVkFormat(v); back != f {
			t.Errorf("format %d came back as %d", f, back)
		}
	}
	if fromVkFormat(vk.FormatR8Unorm) != metadata.FormatUndefined {
		t.Error("unmapped Vulkan format should be undefined")
	}
}

func TestAspectOf(t *testing.T) {
	if aspectOf(metadata.FormatRGBA8Unorm) != vk.ImageAspectColorBit {
		t.Error("color format should use the color aspect")
	}
	if aspectOf(metadata.FormatD32Float) != vk.ImageAspectDepthBit {
		t.Error("D32 should use the depth aspect")
	}
	if aspectOf(metadata.FormatD24UnormS8Uint) != vk.ImageAspectDepthBit|vk.ImageAspectStencilBit {
		t.Error("D24S8 should use depth and stencil")
	}
}

func TestUsageFromBindFlags(t *testing.T) {
	usage := imageUsage(metadata.BindFlagRenderTarget | metadata.BindFlagShaderResource)
	if usage&vk.ImageUsageColorAttachmentBit == 0 || usage&vk.ImageUsageSampledBit == 0 {
		t.Errorf("image usage %#x misses attachment or sampled", usage)
	}
	if imageUsage(0) != vk.ImageUsageSampledBit {
		t.Error("textures without flags default to sampled")
	}
	bu := bufferUsage(metadata.BindFlagVertexBuffer | metadata.BindFlagCopyDest)
	if bu&vk.BufferUsageVertexBufferBit == 0 || bu&vk.BufferUsageTransferDstBit == 0 {
		t.Errorf("buffer usage %#x misses vertex or transfer dst", bu)
	}
}

func TestDescriptorTypeOf(t *testing.T) {
	cases := map[metadata.ViewType]vk.DescriptorType{
		metadata.ViewTypeConstantBuffer:     vk.DescriptorTypeUniformBuffer,
		metadata.ViewTypeSampler:            vk.DescriptorTypeSampler,
		metadata.ViewTypeTexture:            vk.DescriptorTypeSampledImage,
		metadata.ViewTypeRWTexture:          vk.DescriptorTypeStorageImage,
		metadata.ViewTypeRWStructuredBuffer: vk.DescriptorTypeStorageBuffer,
	}
	for vt, want := range cases {
		got, ok := descriptorTypeOf(vt)
		if !ok || got != want {
			t.Errorf("%s: got %d (%t), want %d", vt, got, ok, want)
		}
	}
	for _, vt := range []metadata.ViewType{metadata.ViewTypeRenderTarget, metadata.ViewTypeDepthStencil, metadata.ViewTypeShadingRateSource} {
		if _, ok := descriptorTypeOf(vt); ok {
			t.Errorf("%s should not be shader visible", vt)
		}
	}
}

func TestPresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo, vk.PresentModeMailbox}
	if presentMode(true, all) != vk.PresentModeFifo {
		t.Error("vsync must use FIFO")
	}
	if presentMode(false, all) != vk.PresentModeMailbox {
		t.Error("mailbox preferred without vsync")
	}
	if presentMode(false, []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}) != vk.PresentModeImmediate {
		t.Error("immediate is the fallback without vsync")
	}
}

func TestResultString(t *testing.T) {
	if VulkanResultString(vk.ErrorDeviceLost) != "VK_ERROR_DEVICE_LOST" {
		t.Error("device lost name")
	}
	if VulkanResultString(vk.Result(-12345)) != "VkResult(-12345)" {
		t.Errorf("unknown result = %s", VulkanResultString(vk.Result(-12345)))
	}
	if cString([]byte{'a', 'b', 0, 'c'}) != "ab" {
		t.Error("cString should stop at the first zero")
	}
	if s := VulkanSafeString("x"); s != "x\x00" {
		t.Errorf("VulkanSafeString = %q", s)
	}
}

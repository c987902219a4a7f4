package metadata

/** @brief Parameters for swapchain (re)creation. */
type SwapchainDesc struct {
	Width      uint32
	Height     uint32
	FrameCount uint32
	VSync      bool
	Format     Format
}

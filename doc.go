/*
Package gfx is a small cross-backend abstraction over explicit GPU APIs. It describes devices,
buffers, images, pipelines, command lists and swapchains in backend neutral terms, and the
concrete Vulkan implementation lives in the vulkan sub-package.

Explicit APIs such as Vulkan hand the application everything a driver like OpenGL used to manage:
where memory lives, when an image changes layout, when a command buffer may be reused and how
frames in flight are kept from trampling each other. This package keeps that power available but
takes care of the bookkeeping that is easy to get wrong:

	Layout tracking   every image carries its current Layout and barriers are derived from it
	Binding tracking  images and buffers remember every pipeline slot they are bound to, so a
	                  sampler or layout change can rewrite all of them
	Recycling         queues hand out command lists and take them back once their fence signals
	Presentation      swapchains keep two frames in flight and rebuild themselves when the
	                  surface goes out of date

A typical frame looks like:

	1. swapchain.AcquireImage()
	2. cmd := queue.Release(); cmd.Begin()
	3. pipeline.Use(cmd, swapchain.CurrentFrame()); draw
	4. swapchain.Present(cmd)

Everything that talks to the native API returns an error; sentinel values in this package
classify them (see ErrAllocation, ErrContract and friends).
*/
package gfx

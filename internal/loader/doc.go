// Package loader reads pretrained convolution weights from SafeTensors files.
//
// SafeTensors layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// Tensor names are resolved to extractor layers by a WeightMapper. Two
// naming schemes are understood:
//   - torchvision: features.{idx}.weight [out,in,3,3], features.{idx}.bias
//   - Keras: block{b}_conv{i}/kernel:0 [3,3,in,out], block{b}_conv{i}/bias:0
//
// Example:
//
//	r, err := loader.NewSafeTensorsReader("vgg19.safetensors")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	w, err := r.LoadTensor("features.0.weight")
//
// Design principles:
//   - Pure Go: No CGO dependencies
//   - Validation before use: offsets, names and sizes are checked up front
//   - Lazy loading: tensors are read on demand
package loader

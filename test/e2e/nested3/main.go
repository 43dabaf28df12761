package main

func __kmpc_fork_call(loc int32, nargs int32, microtask any) {}

//cgraomp:offload-info dev=0x806 file=0x14 name=stencilAdd line=8 order=0
func __omp_offloading_806_14_stencilAdd_l8(a *[4][8][16]int32, b *[4][8][16]int32, c *[4][8][16]int32, s int32) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			for k := 0; k < 16; k++ {
				c[i][j][k] = a[i][j][k] + b[i][j][k]*s
			}
		}
	}
}

func stencilAdd(a, b, c *[4][8][16]int32, s int32) {
	__kmpc_fork_call(0, 4, __omp_offloading_806_14_stencilAdd_l8)
}

func main() {
	var a, b, c [4][8][16]int32
	stencilAdd(&a, &b, &c, 3)
}
